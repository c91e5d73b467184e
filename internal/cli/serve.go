package cli

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xxxbrian/ini2clash/internal/cache"
	"github.com/xxxbrian/ini2clash/internal/server"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merged config over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	addSourceFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (default \":8080\")")
	return cmd
}

func runServe(cmd *cobra.Command, opts *options) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	gin.SetMode(gin.ReleaseMode)
	rc := cache.NewResultCache(e.cfg.Cache.ResultTTL)
	srv := server.New(e.builder(), rc, e.logger)

	go srv.Maintain(ctx, e.fetcher, e.cfg.Server.RefreshInterval, server.CleanupInterval)

	e.logger.Info("starting server",
		zap.String("listen", e.cfg.Server.Listen),
		zap.Duration("document_ttl", e.cfg.Cache.TTL),
		zap.Duration("result_ttl", e.cfg.Cache.ResultTTL),
		zap.Duration("refresh_interval", e.cfg.Server.RefreshInterval))
	return srv.ListenAndServe(ctx, e.cfg.Server.Listen)
}
