package converter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Top-level template sections the replacer knows about.
const (
	SectionRules            = "rules"
	SectionRuleProviders    = "rule-providers"
	SectionProxyGroups      = "proxy-groups"
	SectionDNS              = "dns"
	SectionNameserverPolicy = "nameserver-policy"
)

// TargetHeaders are the template headers whose content is regenerated.
var TargetHeaders = []string{
	SectionRules + ":",
	SectionRuleProviders + ":",
	SectionProxyGroups + ":",
}

// splicer walks template lines once. section is the name of the top-level
// section the previous lines belong to; "" means none seen yet.
type splicer struct {
	blocks  Blocks
	section string
	out     []string
}

// ReplaceSections rewrites the template: the rules, rule-providers and
// proxy-groups sections are replaced by blocks, the nameserver-policy entry
// under dns is dropped, and every other line is copied verbatim.
// A missing target header means its block is never inserted.
func ReplaceSections(template string, blocks Blocks) string {
	s := &splicer{blocks: blocks}
	for _, line := range SplitLines(template) {
		s.step(line)
	}
	return strings.Join(s.out, "\n")
}

func (s *splicer) step(line string) {
	if isTopLevelHeader(line) {
		name, _, _ := strings.Cut(line, ":")
		s.section = strings.TrimSpace(name)
	}

	switch {
	case strings.HasPrefix(line, SectionRules+":"):
		s.replace(SectionRules, s.blocks.Rules)
	case strings.HasPrefix(line, SectionRuleProviders+":"):
		s.replace(SectionRuleProviders, s.blocks.RuleProviders)
	case strings.HasPrefix(line, SectionProxyGroups+":"):
		s.replace(SectionProxyGroups, s.blocks.ProxyGroups)
	case strings.TrimSpace(line) == "":
		s.out = append(s.out, line)
	case s.section == SectionDNS:
		if strings.Contains(line, SectionNameserverPolicy) {
			s.section = SectionNameserverPolicy
			return
		}
		s.out = append(s.out, line)
	case !isSuppressed(s.section):
		s.out = append(s.out, line)
	}
}

// replace emits the bare header followed by the block as a single element;
// any text after the header on the original line is discarded.
func (s *splicer) replace(section, block string) {
	s.out = append(s.out, section+":", block)
	s.section = section
}

func isSuppressed(section string) bool {
	switch section {
	case SectionRules, SectionRuleProviders, SectionProxyGroups, SectionNameserverPolicy:
		return true
	}
	return false
}

// isTopLevelHeader reports whether line starts with a letter and contains a colon.
func isTopLevelHeader(line string) bool {
	if line == "" || !strings.Contains(line, ":") {
		return false
	}
	r, _ := utf8.DecodeRuneInString(line)
	return unicode.IsLetter(r)
}
