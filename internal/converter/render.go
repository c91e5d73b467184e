package converter

import (
	"strconv"
	"strings"
)

// Render serializes a parsed document into the three section blocks.
func Render(doc Document) Blocks {
	return Blocks{
		Rules:         RenderRules(doc.Rules),
		RuleProviders: RenderProviders(doc.Providers),
		ProxyGroups:   RenderGroups(doc.Groups),
	}
}

// RenderRules renders one "  - ..." line per rule.
func RenderRules(rules []Rule) string {
	result := make([]string, 0, len(rules))
	for _, rule := range rules {
		result = append(result, renderRule(rule))
	}
	return strings.Join(result, "\n")
}

func renderRule(rule Rule) string {
	switch rule.Kind {
	case RuleFinalMatch:
		return "  - MATCH," + rule.Name
	case RuleSetReference:
		return "  - RULE-SET," + rule.ProviderKey + ProviderSuffix + "," + rule.Name
	default:
		line := "  - " + rule.ConditionType + "," + rule.ConditionValue + "," + rule.Name
		if len(rule.ExtraParams) > 0 {
			line += "," + strings.Join(rule.ExtraParams, ",")
		}
		return line
	}
}

// RenderProviders renders one provider per line, each merging the shared
// *class field set.
func RenderProviders(providers []Provider) string {
	result := make([]string, 0, len(providers))
	for _, p := range providers {
		result = append(result, "  "+p.Key+ProviderSuffix+": {!!merge <<: *"+ProviderAnchor+`, url: "`+p.URL+`"}`)
	}
	return strings.Join(result, "\n")
}

// RenderGroups renders each proxy group as a flow mapping.
func RenderGroups(groups []ProxyGroup) string {
	result := make([]string, 0, len(groups))
	for _, g := range groups {
		result = append(result, "  - {name: "+g.Name+
			", type: "+g.Type+
			", proxies: ["+strings.Join(g.Members, ", ")+"]"+
			", include-all: "+strconv.FormatBool(g.IncludeAll)+"}")
	}
	return strings.Join(result, "\n")
}
