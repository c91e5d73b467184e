// Package cli provides the root command and subcommands for ini2clash.
package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xxxbrian/ini2clash/internal/builder"
	"github.com/xxxbrian/ini2clash/internal/cache"
	"github.com/xxxbrian/ini2clash/internal/config"
	"github.com/xxxbrian/ini2clash/internal/fetcher"
	"github.com/xxxbrian/ini2clash/internal/logging"
)

// NewRootCmd creates the root command. Running it without a subcommand
// behaves like "generate".
func NewRootCmd(version ...string) *cobra.Command {
	ver := "dev"
	if len(version) > 0 && version[0] != "" {
		ver = version[0]
	}
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ini2clash",
		Short: "Convert subscription-converter rule definitions into a Clash config",
		Long: `ini2clash reads a rule-definition document (ruleset= and custom_proxy_group=
lines) and a Clash configuration template, and writes the template with its
rules, rule-providers and proxy-groups sections regenerated.

Sources may be http(s) URLs or local files.

Example:
  ini2clash --rules ./clashmini.ini --template ./config.yaml --output out.yaml
  ini2clash serve --listen :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	addPersistentFlags(cmd, opts)
	addGenerateFlags(cmd, opts)

	cmd.AddCommand(NewGenerateCmd(opts))
	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewCheckCmd(opts))
	cmd.AddCommand(NewVersionCmd(ver))
	cmd.AddCommand(NewCompletionCmd())

	return cmd
}

// env is the state every subcommand builds from flags and configuration.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher *fetcher.Fetcher
}

func setup(cmd *cobra.Command, opts *options) (*env, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}

	docCache := cache.NewDocumentCache(cfg.Cache.TTL)
	if cfg.Cache.PersistPath != "" {
		docCache.SetPersistPath(cfg.Cache.PersistPath)
		if err := docCache.LoadFromFile(cfg.Cache.PersistPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("failed to load document cache", zap.String("path", cfg.Cache.PersistPath), zap.Error(err))
			}
		} else {
			logger.Info("loaded document cache", zap.String("path", cfg.Cache.PersistPath))
		}
	}

	f := fetcher.NewFetcher(docCache,
		fetcher.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithLogger(logger),
	)
	return &env{cfg: cfg, logger: logger, fetcher: f}, nil
}

// loadConfig layers defaults, the config file, environment and flags, in
// that order of increasing precedence.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	path, optional := config.DefaultPath, true
	if cmd.Flags().Changed("config") {
		path, optional = opts.configPath, false
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (e *env) builder() *builder.Builder {
	return builder.New(e.fetcher, builder.Options{
		RulesSource:    e.cfg.Sources.Rules,
		TemplateSource: e.cfg.Sources.Template,
		Strict:         e.cfg.Strict,
		Verify:         e.cfg.ShouldVerifyOutput(),
	}, e.logger)
}
