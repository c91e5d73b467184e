// Package converter turns subconverter-style rule definitions into Clash rules,
// rule providers and proxy groups, and splices them into a Clash template.
package converter

// LineKind represents the kind of a tokenized definition line.
type LineKind int

const (
	LineUnrecognized LineKind = iota
	LineRule
	LineGroup
)

// RuleKind represents the variant of a parsed ruleset line.
type RuleKind int

const (
	// RuleFinalMatch is the catch-all MATCH rule.
	RuleFinalMatch RuleKind = iota
	// RuleSetReference points at a remote rule list served through a rule provider.
	RuleSetReference
	// RuleInlineCondition carries its condition directly, e.g. GEOIP,CN.
	RuleInlineCondition
)

// ProviderAnchor names the YAML anchor every rendered rule provider merges with.
// The template must define it outside the replaced sections; it is never validated here.
const ProviderAnchor = "class"

// ProviderSuffix is appended to every provider key.
const ProviderSuffix = "_class"

// WildcardMember marks a proxy group that includes every available proxy.
const WildcardMember = ".*"

// Rule is a parsed ruleset line.
type Rule struct {
	Kind RuleKind
	// Name is the policy (proxy group) the rule routes to.
	Name string

	// RuleSetReference only.
	ProviderKey string
	URL         string

	// RuleInlineCondition only.
	ConditionType  string
	ConditionValue string
	ExtraParams    []string
}

// Provider is the rule-provider entry emitted for each RuleSetReference.
type Provider struct {
	Key string
	URL string
}

// ProxyGroup is a parsed custom_proxy_group line.
type ProxyGroup struct {
	Name       string
	Type       string
	Members    []string
	IncludeAll bool
}

// Line is one tokenized definition line.
type Line struct {
	Kind  LineKind
	Rule  *Rule
	Group *ProxyGroup
	// Raw is the untouched source line.
	Raw string
}

// Document is the ordered result of parsing a rule-definition text.
// Provider keys are not deduplicated: duplicates in the source stay, in order.
type Document struct {
	Rules     []Rule
	Providers []Provider
	Groups    []ProxyGroup
}

// Blocks holds the three rendered sections, each newline-joined without a trailing newline.
type Blocks struct {
	Rules         string
	RuleProviders string
	ProxyGroups   string
}
