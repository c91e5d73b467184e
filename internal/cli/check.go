package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xxxbrian/ini2clash/internal/builder"
	"github.com/xxxbrian/ini2clash/internal/geoip"
)

// NewCheckCmd creates the check subcommand.
func NewCheckCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report problems in the sources without writing anything",
		Long: `check fetches both sources and lists what the conversion would silently
drop or get wrong: malformed definition lines, duplicate provider keys,
missing template headers or anchor, and, with --geoip, GEOIP codes the
database does not know. It fails only with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}
	addSourceFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.geoip, "geoip", "", "MMDB database (URL or file) to validate GEOIP codes against")
	return cmd
}

func runCheck(cmd *cobra.Command, opts *options) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rules, template, err := e.builder().FetchSources(ctx)
	if err != nil {
		return err
	}

	var codes builder.CodeIndex
	if db := e.cfg.GeoIP.Database; db != "" {
		doc, err := e.fetcher.Fetch(ctx, db)
		if err != nil {
			return fmt.Errorf("fetch geoip database %s: %w", db, err)
		}
		idx := geoip.NewIndex()
		if err := idx.Load(doc.Body); err != nil {
			return err
		}
		e.logger.Info("geoip database loaded", zap.String("source", db), zap.Int("codes", idx.Len()))
		codes = idx
	}

	report := builder.Check(rules.Text(), template.Text(), codes)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rules: %d\n", report.Stats.Rules)
	fmt.Fprintf(out, "providers: %d\n", report.Stats.Providers)
	fmt.Fprintf(out, "groups: %d\n", report.Stats.Groups)
	for _, f := range report.Findings {
		fmt.Fprintln(out, f)
	}

	if e.cfg.Strict && len(report.Findings) > 0 {
		return fmt.Errorf("check found %d problem(s)", len(report.Findings))
	}
	return nil
}
