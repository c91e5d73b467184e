package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xxxbrian/ini2clash/internal/builder"
	"github.com/xxxbrian/ini2clash/internal/fetcher"
	"github.com/xxxbrian/ini2clash/internal/watch"
)

// NewGenerateCmd creates the generate subcommand.
func NewGenerateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Merge the rule definitions into the template and write the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
	addGenerateFlags(cmd, opts)
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *options) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	b := e.builder()
	build := func(ctx context.Context) error {
		res, err := b.Build(ctx)
		if err != nil {
			return err
		}
		if err := builder.WriteOutput(e.cfg.Output, res.Document, cmd.OutOrStdout()); err != nil {
			return err
		}
		e.logger.Info("written", zap.String("path", e.cfg.Output))
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := build(ctx); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	var files []string
	for _, src := range []string{e.cfg.Sources.Rules, e.cfg.Sources.Template} {
		if fetcher.IsLocal(src) {
			files = append(files, fetcher.LocalPath(src))
		}
	}
	if len(files) == 0 {
		return errors.New("--watch needs at least one local source file")
	}

	w, err := watch.New(files, e.cfg.Watch.Debounce, e.logger)
	if err != nil {
		return err
	}
	e.logger.Info("watching for changes", zap.Strings("files", files), zap.Duration("debounce", e.cfg.Watch.Debounce))
	return w.Run(ctx, func(ctx context.Context) {
		if err := build(ctx); err != nil {
			e.logger.Error("rebuild failed", zap.Error(err))
		}
	})
}
