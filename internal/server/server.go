// Package server serves the merged Clash document over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxbrian/ini2clash/internal/builder"
	"github.com/xxxbrian/ini2clash/internal/cache"
	"github.com/xxxbrian/ini2clash/internal/converter"
	"github.com/xxxbrian/ini2clash/internal/fetcher"
)

const (
	cacheControl    = "public, max-age=1800"
	yamlContentType = "text/yaml; charset=utf-8"

	// CleanupInterval is how often expired results are evicted.
	CleanupInterval = 10 * time.Minute
)

// Refresher revalidates a source regardless of cache TTL.
type Refresher interface {
	Refresh(ctx context.Context, source string) (fetcher.Document, error)
}

// Server answers /config and /sections requests from cached merge results.
type Server struct {
	builder *builder.Builder
	results *cache.ResultCache
	group   singleflight.Group
	logger  *zap.Logger
}

// New creates a Server. A nil logger discards output.
func New(b *builder.Builder, rc *cache.ResultCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{builder: b, results: rc, logger: logger}
}

// Router builds the gin engine with every route installed.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger())
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/config", s.handleConfig)
	r.GET("/sections/:name", s.handleSection)
	return r
}

func (s *Server) handleConfig(c *gin.Context) {
	res, etag, ok := s.load(c)
	if !ok {
		return
	}
	s.write(c, etag, res.Document)
}

func (s *Server) handleSection(c *gin.Context) {
	name := c.Param("name")
	if !isSection(name) {
		c.String(http.StatusNotFound, "unknown section %q, available: %s, %s, %s", name,
			converter.SectionRules, converter.SectionRuleProviders, converter.SectionProxyGroups)
		return
	}

	res, etag, ok := s.load(c)
	if !ok {
		return
	}
	var body string
	switch name {
	case converter.SectionRules:
		body = res.Blocks.Rules
	case converter.SectionRuleProviders:
		body = res.Blocks.RuleProviders
	case converter.SectionProxyGroups:
		body = res.Blocks.ProxyGroups
	}
	s.write(c, etag+"-"+name, body)
}

func isSection(name string) bool {
	switch name {
	case converter.SectionRules, converter.SectionRuleProviders, converter.SectionProxyGroups:
		return true
	}
	return false
}

func (s *Server) write(c *gin.Context, etag, body string) {
	quoted := `"` + etag + `"`
	c.Header("Cache-Control", cacheControl)
	c.Header("ETag", quoted)
	if c.GetHeader("If-None-Match") == quoted {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, yamlContentType, []byte(body))
}

// load returns the merge result for the current source versions, writing an
// error response itself when it fails.
func (s *Server) load(c *gin.Context) (cache.Result, string, bool) {
	ctx := c.Request.Context()

	rules, template, err := s.builder.FetchSources(ctx)
	if err != nil {
		s.logger.Warn("upstream fetch failed", zap.Error(err))
		c.String(http.StatusBadGateway, "Failed to fetch upstream: %v", err)
		return cache.Result{}, "", false
	}

	key := cache.Key(rules.ETag, template.ETag)
	if res, ok := s.results.Get(key); ok {
		s.logger.Debug("result cache hit", zap.String("key", key))
		return res, key, true
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		if res, ok := s.results.Get(key); ok {
			return res, nil
		}
		merged, err := s.builder.Merge(rules.Text(), template.Text())
		if err != nil {
			return nil, err
		}
		res := cache.Result{Document: merged.Document, Blocks: merged.Blocks}
		s.results.Set(key, res)
		s.logger.Info("generated and cached result", zap.String("key", key))
		return res, nil
	})
	if err != nil {
		s.logger.Error("merge failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to convert: %v", err)
		return cache.Result{}, "", false
	}
	if shared {
		s.logger.Debug("merge shared with concurrent request", zap.String("key", key))
	}
	return v.(cache.Result), key, true
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Maintain revalidates both sources every refreshInterval (disabled when
// zero) and evicts expired results every cleanupInterval, until ctx is done.
func (s *Server) Maintain(ctx context.Context, refresher Refresher, refreshInterval, cleanupInterval time.Duration) {
	opts := s.builder.Options()
	refresh := func() {
		for _, source := range []string{opts.RulesSource, opts.TemplateSource} {
			doc, err := refresher.Refresh(ctx, source)
			if err != nil {
				s.logger.Warn("source refresh failed", zap.String("source", source), zap.Error(err))
				continue
			}
			s.logger.Debug("source refreshed", zap.String("source", source), zap.String("etag", doc.ETag))
		}
	}

	var refreshC <-chan time.Time
	if refreshInterval > 0 && refresher != nil {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		refreshC = ticker.C
	}
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refreshC:
			refresh()
		case <-cleanup.C:
			s.results.Cleanup()
		}
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
