package cli

import (
	"github.com/spf13/cobra"

	"github.com/xxxbrian/ini2clash/internal/config"
)

// options holds raw flag values. Only flags the user actually set override
// the loaded configuration.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	rules    string
	template string
	output   string
	strict   bool
	noVerify bool
	watch    bool

	listen string
	geoip  string
}

func addPersistentFlags(cmd *cobra.Command, o *options) {
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "Log format: auto, console, json")
}

func addSourceFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVar(&o.rules, "rules", "", "Rule-definition document (URL or file)")
	cmd.Flags().StringVar(&o.template, "template", "", "Clash template document (URL or file)")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "Fail on missing template headers or anchor")
}

func addGenerateFlags(cmd *cobra.Command, o *options) {
	addSourceFlags(cmd, o)
	cmd.Flags().StringVarP(&o.output, "output", "o", "", `Output file, "-" for stdout (default "`+config.DefaultOutput+`")`)
	cmd.Flags().BoolVar(&o.noVerify, "no-verify", false, "Skip parsing the merged document as YAML")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "Rebuild whenever a local source file changes")
}

func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if flags.Changed("rules") {
		cfg.Sources.Rules = o.rules
	}
	if flags.Changed("template") {
		cfg.Sources.Template = o.template
	}
	if flags.Changed("output") {
		cfg.Output = o.output
	}
	if flags.Changed("strict") {
		cfg.Strict = o.strict
	}
	if flags.Changed("no-verify") {
		verify := !o.noVerify
		cfg.VerifyOutput = &verify
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = o.listen
	}
	if flags.Changed("geoip") {
		cfg.GeoIP.Database = o.geoip
	}
}
