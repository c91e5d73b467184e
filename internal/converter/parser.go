package converter

import (
	"strings"
)

const (
	rulesetPrefix    = "ruleset="
	proxyGroupPrefix = "custom_proxy_group="
)

// Parse tokenizes a rule-definition text and collects rules, providers and
// groups in source order. Unrecognized and malformed lines are dropped.
func Parse(content string) Document {
	var doc Document
	for _, line := range Tokenize(content) {
		switch line.Kind {
		case LineRule:
			doc.Rules = append(doc.Rules, *line.Rule)
			if line.Rule.Kind == RuleSetReference {
				doc.Providers = append(doc.Providers, Provider{
					Key: line.Rule.ProviderKey,
					URL: line.Rule.URL,
				})
			}
		case LineGroup:
			doc.Groups = append(doc.Groups, *line.Group)
		}
	}
	return doc
}

// Tokenize splits content into lines and classifies each one.
func Tokenize(content string) []Line {
	raw := SplitLines(content)
	lines := make([]Line, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, ParseLine(l))
	}
	return lines
}

// ParseLine classifies a single definition line. Lines that carry a known
// prefix but are malformed come back as LineUnrecognized.
func ParseLine(line string) Line {
	switch {
	case strings.HasPrefix(line, rulesetPrefix):
		if rule, ok := parseRuleset(line); ok {
			return Line{Kind: LineRule, Rule: &rule, Raw: line}
		}
	case strings.HasPrefix(line, proxyGroupPrefix):
		if group, ok := parseProxyGroup(line); ok {
			return Line{Kind: LineGroup, Group: &group, Raw: line}
		}
	}
	return Line{Kind: LineUnrecognized, Raw: line}
}

// IsDefinition reports whether line carries one of the recognized prefixes,
// whether or not it parses.
func IsDefinition(line string) bool {
	return strings.HasPrefix(line, rulesetPrefix) || strings.HasPrefix(line, proxyGroupPrefix)
}

// parseRuleset handles "ruleset=NAME,REST". Values cannot contain commas.
func parseRuleset(line string) (Rule, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Rule{}, false
	}
	name := definitionName(fields[0])

	if len(fields) == 2 {
		url := strings.TrimSpace(fields[1])
		if strings.Contains(strings.ToLower(url), "final") {
			return Rule{Kind: RuleFinalMatch, Name: name}, true
		}
		return Rule{
			Kind:        RuleSetReference,
			Name:        name,
			ProviderKey: ProviderKey(url),
			URL:         url,
		}, true
	}

	var extra []string
	for _, f := range fields[3:] {
		if f = strings.TrimSpace(f); f != "" {
			extra = append(extra, f)
		}
	}
	return Rule{
		Kind:           RuleInlineCondition,
		Name:           name,
		ConditionType:  strings.Trim(fields[1], "[]"),
		ConditionValue: strings.Trim(fields[2], "[]"),
		ExtraParams:    extra,
	}, true
}

// parseProxyGroup handles "custom_proxy_group=NAME`TYPE`MEMBER...".
func parseProxyGroup(line string) (ProxyGroup, bool) {
	fields := strings.Split(line, "`")
	if len(fields) < 3 {
		return ProxyGroup{}, false
	}

	members := make([]string, 0, len(fields)-2)
	for _, f := range fields[2:] {
		m := strings.Trim(strings.TrimSpace(f), "[]")
		if m == "" || m == WildcardMember {
			continue
		}
		members = append(members, m)
	}

	return ProxyGroup{
		Name:       definitionName(fields[0]),
		Type:       strings.TrimSpace(fields[1]),
		Members:    members,
		IncludeAll: strings.TrimSpace(fields[len(fields)-1]) == WildcardMember,
	}, true
}

// definitionName returns the text between the first and second '=' of a
// prefixed field, trimmed.
func definitionName(field string) string {
	_, rest, _ := strings.Cut(field, "=")
	name, _, _ := strings.Cut(rest, "=")
	return strings.TrimSpace(name)
}

// ProviderKey derives the provider key from a rule list URL: the last path
// segment with its extension removed, lowercased.
func ProviderKey(url string) string {
	base := url
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.ToLower(stripExt(base))
}

// stripExt removes the final extension. Leading dots do not start an
// extension, so ".list" stays ".list".
func stripExt(name string) string {
	lead := len(name) - len(strings.TrimLeft(name, "."))
	if i := strings.LastIndex(name[lead:], "."); i >= 0 {
		return name[:lead+i]
	}
	return name
}

// SplitLines splits text on \n, \r\n and \r. A trailing line break does not
// produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
