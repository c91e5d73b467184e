package converter

import (
	"regexp"
	"strings"
)

var anchorPattern = regexp.MustCompile(`(^|\s)&` + regexp.QuoteMeta(ProviderAnchor) + `(\s|$)`)

// Convert parses ruleText, renders it and splices the result into template.
// It is a pure function of its inputs.
func Convert(ruleText, template string) string {
	return ReplaceSections(template, Render(Parse(ruleText)))
}

// MissingHeaders returns the target headers that no template line starts with.
// Callers use it to check the precondition ReplaceSections does not enforce.
func MissingHeaders(template string) []string {
	found := make(map[string]bool, len(TargetHeaders))
	for _, line := range SplitLines(template) {
		for _, h := range TargetHeaders {
			if strings.HasPrefix(line, h) {
				found[h] = true
			}
		}
	}
	var missing []string
	for _, h := range TargetHeaders {
		if !found[h] {
			missing = append(missing, h)
		}
	}
	return missing
}

// HasProviderAnchor reports whether template defines the &class anchor that
// rendered providers merge with.
func HasProviderAnchor(template string) bool {
	for _, line := range SplitLines(template) {
		if anchorPattern.MatchString(line) {
			return true
		}
	}
	return false
}
