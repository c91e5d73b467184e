// Package fetcher retrieves the rule-definition and template documents from
// http(s) URLs or local files.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xxxbrian/ini2clash/internal/cache"
)

const (
	// DefaultUserAgent is sent with every upstream request.
	DefaultUserAgent = "ini2clash/1.0"
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 60 * time.Second

	maxDocumentBytes = 16 << 20
)

// ErrDocumentTooLarge is returned when a response body exceeds the size limit.
var ErrDocumentTooLarge = errors.New("document too large")

// Document is a retrieved source document.
type Document struct {
	Source    string
	Body      []byte
	ETag      string
	FromCache bool
}

// Text returns the body as a string.
func (d Document) Text() string {
	return string(d.Body)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.URL, e.Status)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for cache and revalidation events.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher handles document retrieval
type Fetcher struct {
	client    *http.Client
	userAgent string
	docCache  *cache.DocumentCache
	logger    *zap.Logger
}

// NewFetcher creates a new Fetcher. docCache may be nil to disable caching.
func NewFetcher(docCache *cache.DocumentCache, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: DefaultUserAgent,
		docCache:  docCache,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsLocal reports whether source names a local file rather than an http(s) URL.
func IsLocal(source string) bool {
	lower := strings.ToLower(source)
	return !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://")
}

// LocalPath strips an optional file:// scheme.
func LocalPath(source string) string {
	return strings.TrimPrefix(source, "file://")
}

// Fetch returns a cached or freshly downloaded document.
func (f *Fetcher) Fetch(ctx context.Context, source string) (Document, error) {
	if IsLocal(source) {
		return readLocal(source)
	}

	if f.docCache != nil {
		if data, etag, ok := f.docCache.Get(source); ok {
			f.logger.Debug("document cache hit", zap.String("source", source), zap.String("etag", etag))
			return Document{Source: source, Body: data, ETag: etag, FromCache: true}, nil
		}
	}
	return f.revalidate(ctx, source)
}

// Refresh checks upstream for updates regardless of TTL.
func (f *Fetcher) Refresh(ctx context.Context, source string) (Document, error) {
	if IsLocal(source) {
		return readLocal(source)
	}
	return f.revalidate(ctx, source)
}

func (f *Fetcher) revalidate(ctx context.Context, source string) (Document, error) {
	var (
		stale     []byte
		staleETag string
		hasStale  bool
	)
	if f.docCache != nil {
		stale, staleETag, hasStale = f.docCache.GetAny(source)
	}

	if hasStale {
		newETag, err := f.GetETag(ctx, source)
		switch {
		case err != nil:
			f.logger.Warn("etag check failed, serving cached document",
				zap.String("source", source), zap.Error(err))
			return Document{Source: source, Body: stale, ETag: staleETag, FromCache: true}, nil
		case newETag != "" && newETag == staleETag:
			f.docCache.Touch(source)
			return Document{Source: source, Body: stale, ETag: staleETag, FromCache: true}, nil
		}
	}

	data, etag, err := f.download(ctx, source)
	if err != nil {
		return Document{}, err
	}
	f.logger.Info("document downloaded",
		zap.String("source", source), zap.String("etag", etag), zap.Int("bytes", len(data)))

	if f.docCache != nil {
		if err := f.docCache.Set(source, data, etag); err != nil {
			return Document{}, fmt.Errorf("failed to set cache: %w", err)
		}
	}
	return Document{Source: source, Body: data, ETag: etag}, nil
}

// GetETag fetches the ETag of url without downloading the body.
func (f *Fetcher) GetETag(ctx context.Context, url string) (string, error) {
	req, err := f.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Method: http.MethodHead, URL: url, Code: resp.StatusCode, Status: resp.Status}
	}
	return cleanETag(resp.Header.Get("ETag")), nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrDocumentTooLarge, url, maxDocumentBytes)
	}

	etag := cleanETag(resp.Header.Get("ETag"))
	if etag == "" {
		etag = contentETag(data)
	}
	return data, etag, nil
}

func (f *Fetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	return req, nil
}

func readLocal(source string) (Document, error) {
	path := LocalPath(source)
	// #nosec G304 -- path comes from trusted config/flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Document{Source: source, Body: data, ETag: contentETag(data)}, nil
}

// cleanETag removes quotes and the W/ prefix.
func cleanETag(etag string) string {
	etag = strings.ReplaceAll(etag, "\"", "")
	return strings.TrimPrefix(etag, "W/")
}

func contentETag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
