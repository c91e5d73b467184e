package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineRuleset(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Rule
	}{
		{
			name:  "final marker",
			input: "ruleset=🐟 漏网之鱼,[]FINAL",
			want:  &Rule{Kind: RuleFinalMatch, Name: "🐟 漏网之鱼"},
		},
		{
			name:  "final in url is case-insensitive",
			input: "ruleset=Fallback,https://example.com/rules/Final.list",
			want:  &Rule{Kind: RuleFinalMatch, Name: "Fallback"},
		},
		{
			name:  "rule set reference",
			input: "ruleset=Proxy, https://example.com/Clash/Ruleset/GoogleFCM.list ",
			want: &Rule{
				Kind:        RuleSetReference,
				Name:        "Proxy",
				ProviderKey: "googlefcm",
				URL:         "https://example.com/Clash/Ruleset/GoogleFCM.list",
			},
		},
		{
			name:  "inline condition",
			input: "ruleset=Direct,[]GEOIP,CN",
			want:  &Rule{Kind: RuleInlineCondition, Name: "Direct", ConditionType: "GEOIP", ConditionValue: "CN"},
		},
		{
			name:  "missing comma between condition fields reads as a rule-set reference",
			input: "ruleset=Direct,[DOMAIN-SUFFIX][example.com",
			want: &Rule{
				Kind:        RuleSetReference,
				Name:        "Direct",
				ProviderKey: "[domain-suffix][example",
				URL:         "[DOMAIN-SUFFIX][example.com",
			},
		},
		{
			name:  "inline condition with brackets on both fields",
			input: "ruleset=Direct,[DOMAIN-SUFFIX],[example.com]",
			want:  &Rule{Kind: RuleInlineCondition, Name: "Direct", ConditionType: "DOMAIN-SUFFIX", ConditionValue: "example.com"},
		},
		{
			name:  "inline condition with extra params",
			input: "ruleset=Direct,[]IP-CIDR,10.0.0.0/8, no-resolve",
			want: &Rule{
				Kind:           RuleInlineCondition,
				Name:           "Direct",
				ConditionType:  "IP-CIDR",
				ConditionValue: "10.0.0.0/8",
				ExtraParams:    []string{"no-resolve"},
			},
		},
		{
			name:  "trailing empty fields are dropped",
			input: "ruleset=Direct,[]GEOIP,CN, ,,",
			want:  &Rule{Kind: RuleInlineCondition, Name: "Direct", ConditionType: "GEOIP", ConditionValue: "CN"},
		},
		{
			name:  "name stops at second equals sign",
			input: "ruleset=a=b,[]GEOIP,CN",
			want:  &Rule{Kind: RuleInlineCondition, Name: "a", ConditionType: "GEOIP", ConditionValue: "CN"},
		},
		{name: "no comma", input: "ruleset=Direct", want: nil},
		{name: "comment", input: ";ruleset=Direct,[]GEOIP,CN", want: nil},
		{name: "indented", input: " ruleset=Direct,[]GEOIP,CN", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := ParseLine(tt.input)
			assert.Equal(t, tt.input, line.Raw)
			if tt.want == nil {
				assert.Equal(t, LineUnrecognized, line.Kind)
				assert.Nil(t, line.Rule)
				return
			}
			require.Equal(t, LineRule, line.Kind)
			require.NotNil(t, line.Rule)
			assert.Equal(t, *tt.want, *line.Rule)
		})
	}
}

func TestParseLineProxyGroup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *ProxyGroup
	}{
		{
			name:  "members and wildcard",
			input: "custom_proxy_group=Auto`url-test`[ProxyA]`[ProxyB]`.*",
			want:  &ProxyGroup{Name: "Auto", Type: "url-test", Members: []string{"ProxyA", "ProxyB"}, IncludeAll: true},
		},
		{
			name:  "wildcard not last",
			input: "custom_proxy_group=Select`select`[]DIRECT`.*`[]REJECT",
			want:  &ProxyGroup{Name: "Select", Type: "select", Members: []string{"DIRECT", "REJECT"}},
		},
		{
			name:  "wildcard last with whitespace",
			input: "custom_proxy_group= Media ` select `[]Proxy` .* ",
			want:  &ProxyGroup{Name: "Media", Type: "select", Members: []string{"Proxy"}, IncludeAll: true},
		},
		{
			name:  "duplicates kept in order",
			input: "custom_proxy_group=G`select`[]A`[]B`[]A",
			want:  &ProxyGroup{Name: "G", Type: "select", Members: []string{"A", "B", "A"}},
		},
		{
			name:  "bracketed wildcard is not a member and not include-all",
			input: "custom_proxy_group=G`select`[].*",
			want:  &ProxyGroup{Name: "G", Type: "select", Members: []string{}},
		},
		{
			name:  "empty fields dropped",
			input: "custom_proxy_group=G`select``[]`A",
			want:  &ProxyGroup{Name: "G", Type: "select", Members: []string{"A"}},
		},
		{name: "too few fields", input: "custom_proxy_group=G`select", want: nil},
		{name: "no fields", input: "custom_proxy_group=G", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := ParseLine(tt.input)
			if tt.want == nil {
				assert.Equal(t, LineUnrecognized, line.Kind)
				assert.Nil(t, line.Group)
				return
			}
			require.Equal(t, LineGroup, line.Kind)
			require.NotNil(t, line.Group)
			assert.Equal(t, *tt.want, *line.Group)
		})
	}
}

func TestProviderKey(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/rules/LocalAreaNetwork.list", "localareanetwork"},
		{"https://example.com/rules/Google.Play.yaml", "google.play"},
		{"https://example.com/rules/NoExt", "noext"},
		{"https://example.com/rules/.hidden", ".hidden"},
		{"https://example.com/rules/", ""},
		{"Local.LIST", "local"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProviderKey(tt.url), tt.url)
	}
}

func TestParseKeepsOrderAndDuplicates(t *testing.T) {
	content := "[custom]\r\n" +
		"ruleset=Proxy,https://a.example/one/Google.list\r\n" +
		"ruleset=Direct,[]GEOIP,CN\r\n" +
		"ruleset=Media,https://b.example/two/google.yaml\r\n" +
		"ruleset=Broken\r\n" +
		"custom_proxy_group=Proxy`select`[]DIRECT\r\n" +
		"ruleset=Final,[]FINAL\r\n"

	doc := Parse(content)

	require.Len(t, doc.Rules, 4)
	assert.Equal(t, RuleSetReference, doc.Rules[0].Kind)
	assert.Equal(t, RuleInlineCondition, doc.Rules[1].Kind)
	assert.Equal(t, RuleSetReference, doc.Rules[2].Kind)
	assert.Equal(t, RuleFinalMatch, doc.Rules[3].Kind)

	assert.Equal(t, []Provider{
		{Key: "google", URL: "https://a.example/one/Google.list"},
		{Key: "google", URL: "https://b.example/two/google.yaml"},
	}, doc.Providers)

	require.Len(t, doc.Groups, 1)
	assert.Equal(t, "Proxy", doc.Groups[0].Name)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{""}, SplitLines("\n"))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\r\n\rb"))
	assert.Equal(t, []string{"a", "b", ""}, SplitLines("a\nb\n\n"))
}

func TestIsDefinition(t *testing.T) {
	assert.True(t, IsDefinition("ruleset=Broken"))
	assert.True(t, IsDefinition("custom_proxy_group=G"))
	assert.False(t, IsDefinition("enable_rule_generator=true"))
}
