// Package builder drives a conversion run: it retrieves both source
// documents, checks the template preconditions the converter leaves to its
// caller, merges, and verifies the result.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xxxbrian/ini2clash/internal/converter"
	"github.com/xxxbrian/ini2clash/internal/fetcher"
)

var (
	// ErrMissingHeader is returned in strict mode when the template lacks a target header.
	ErrMissingHeader = errors.New("template is missing a target section header")
	// ErrMissingAnchor is returned in strict mode when the template lacks the &class anchor.
	ErrMissingAnchor = errors.New("template does not define the provider anchor")
	// ErrInvalidOutput is returned when the merged document fails to decode as YAML.
	ErrInvalidOutput = errors.New("merged document is not valid YAML")
)

// Source retrieves a document by location.
type Source interface {
	Fetch(ctx context.Context, source string) (fetcher.Document, error)
}

// Options configures a Builder.
type Options struct {
	RulesSource    string
	TemplateSource string
	// Strict fails the run when a precondition does not hold instead of logging it.
	Strict bool
	// Verify decodes the merged document as YAML before returning it.
	Verify bool
}

// Stats counts what the rule-definition document produced.
type Stats struct {
	Rules     int
	Providers int
	Groups    int
}

// Result is the outcome of a successful run.
type Result struct {
	Document     string
	Blocks       converter.Blocks
	Stats        Stats
	RulesETag    string
	TemplateETag string
	// Warnings lists precondition problems tolerated outside strict mode.
	Warnings []string
}

// Builder runs conversions.
type Builder struct {
	src    Source
	opts   Options
	logger *zap.Logger
}

// New creates a Builder. A nil logger discards output.
func New(src Source, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{src: src, opts: opts, logger: logger}
}

// Options returns the options the builder was created with.
func (b *Builder) Options() Options {
	return b.opts
}

// FetchSources retrieves the rule-definition document and then the template.
func (b *Builder) FetchSources(ctx context.Context) (rules, template fetcher.Document, err error) {
	rules, err = b.src.Fetch(ctx, b.opts.RulesSource)
	if err != nil {
		return rules, template, fmt.Errorf("fetch rules %s: %w", b.opts.RulesSource, err)
	}
	template, err = b.src.Fetch(ctx, b.opts.TemplateSource)
	if err != nil {
		return rules, template, fmt.Errorf("fetch template %s: %w", b.opts.TemplateSource, err)
	}
	b.logger.Debug("sources fetched",
		zap.String("rules_etag", rules.ETag), zap.Bool("rules_cached", rules.FromCache),
		zap.String("template_etag", template.ETag), zap.Bool("template_cached", template.FromCache))
	return rules, template, nil
}

// Build fetches both sources and merges them.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	rules, template, err := b.FetchSources(ctx)
	if err != nil {
		return nil, err
	}
	res, err := b.Merge(rules.Text(), template.Text())
	if err != nil {
		return nil, err
	}
	res.RulesETag = rules.ETag
	res.TemplateETag = template.ETag
	return res, nil
}

// Merge converts ruleText into the three sections and splices them into template.
func (b *Builder) Merge(ruleText, template string) (*Result, error) {
	warnings, err := b.checkTemplate(template)
	if err != nil {
		return nil, err
	}

	doc := converter.Parse(ruleText)
	blocks := converter.Render(doc)
	out := converter.ReplaceSections(template, blocks)

	if b.opts.Verify {
		if err := VerifyYAML(out); err != nil {
			return nil, err
		}
	}

	stats := Stats{Rules: len(doc.Rules), Providers: len(doc.Providers), Groups: len(doc.Groups)}
	b.logger.Info("merged",
		zap.Int("rules", stats.Rules), zap.Int("providers", stats.Providers), zap.Int("groups", stats.Groups))

	return &Result{Document: out, Blocks: blocks, Stats: stats, Warnings: warnings}, nil
}

func (b *Builder) checkTemplate(template string) ([]string, error) {
	var warnings []string
	if missing := converter.MissingHeaders(template); len(missing) > 0 {
		if b.opts.Strict {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
		}
		for _, h := range missing {
			b.logger.Warn("template header missing, section will not be generated", zap.String("header", h))
			warnings = append(warnings, "missing header "+h)
		}
	}
	if !converter.HasProviderAnchor(template) {
		if b.opts.Strict {
			return nil, fmt.Errorf("%w &%s", ErrMissingAnchor, converter.ProviderAnchor)
		}
		b.logger.Warn("template does not define the provider anchor", zap.String("anchor", "&"+converter.ProviderAnchor))
		warnings = append(warnings, "missing anchor &"+converter.ProviderAnchor)
	}
	return warnings, nil
}

// VerifyYAML decodes doc, resolving aliases and merge keys.
func VerifyYAML(doc string) error {
	var v any
	if err := yaml.Unmarshal([]byte(doc), &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}
