package builder

import (
	"fmt"
	"strings"

	"github.com/xxxbrian/ini2clash/internal/converter"
)

// CodeIndex reports which GEOIP codes a database does not know.
type CodeIndex interface {
	Unknown(codes []string) []string
}

// Report summarizes what a conversion would do, without performing it.
type Report struct {
	Stats    Stats
	Findings []string
}

// Check inspects both documents for problems the converter tolerates
// silently: dropped definition lines, duplicate provider keys, missing
// headers or anchor, and GEOIP codes absent from geo (skipped when nil).
func Check(ruleText, template string, geo CodeIndex) Report {
	var report Report

	keyCount := make(map[string]int)
	var keyOrder []string
	var geoCodes []string

	for i, line := range converter.Tokenize(ruleText) {
		switch line.Kind {
		case converter.LineUnrecognized:
			if converter.IsDefinition(line.Raw) {
				report.Findings = append(report.Findings,
					fmt.Sprintf("line %d: malformed definition dropped: %s", i+1, line.Raw))
			}
		case converter.LineGroup:
			report.Stats.Groups++
		case converter.LineRule:
			report.Stats.Rules++
			rule := line.Rule
			switch rule.Kind {
			case converter.RuleSetReference:
				report.Stats.Providers++
				if keyCount[rule.ProviderKey] == 0 {
					keyOrder = append(keyOrder, rule.ProviderKey)
				}
				keyCount[rule.ProviderKey]++
			case converter.RuleInlineCondition:
				if strings.EqualFold(rule.ConditionType, "GEOIP") {
					geoCodes = append(geoCodes, rule.ConditionValue)
				}
			}
		}
	}

	if geo != nil {
		if unknown := geo.Unknown(geoCodes); len(unknown) > 0 {
			report.Findings = append(report.Findings,
				"GEOIP codes not found in database: "+strings.Join(unknown, ", "))
		}
	}

	for _, key := range keyOrder {
		if n := keyCount[key]; n > 1 {
			report.Findings = append(report.Findings,
				fmt.Sprintf("provider %s%s is defined %d times", key, converter.ProviderSuffix, n))
		}
	}

	for _, h := range converter.MissingHeaders(template) {
		report.Findings = append(report.Findings, "template: missing header "+h)
	}
	if !converter.HasProviderAnchor(template) {
		report.Findings = append(report.Findings, "template: missing anchor &"+converter.ProviderAnchor)
	}
	return report
}
