package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/ini2clash/internal/builder"
)

const cliRules = "ruleset=Direct,https://example.com/Google.list\n" +
	"ruleset=Final,[]FINAL\n" +
	"custom_proxy_group=Final`select`[]DIRECT\n"

const cliTemplate = "p: &class {type: http}\n" +
	"proxy-groups:\n" +
	"rule-providers:\n" +
	"rules:\n" +
	"  - MATCH,DIRECT\n"

const wantDocument = "p: &class {type: http}\n" +
	"proxy-groups:\n" +
	"  - {name: Final, type: select, proxies: [DIRECT], include-all: false}\n" +
	"rule-providers:\n" +
	`  google_class: {!!merge <<: *class, url: "https://example.com/Google.list"}` + "\n" +
	"rules:\n" +
	"  - RULE-SET,google_class,Direct\n" +
	"  - MATCH,Final"

func writeSources(t *testing.T, rules, template string) (dir, rulesPath, templatePath string) {
	t.Helper()
	dir = t.TempDir()
	rulesPath = filepath.Join(dir, "rules.ini")
	templatePath = filepath.Join(dir, "template.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o644))
	require.NoError(t, os.WriteFile(templatePath, []byte(template), 0o644))
	return dir, rulesPath, templatePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate(t *testing.T) {
	dir, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)
	output := filepath.Join(dir, "out.yaml")

	for _, args := range [][]string{
		{"--rules", rulesPath, "--template", templatePath, "-o", output},
		{"generate", "--rules", rulesPath, "--template", templatePath, "--output", output},
	} {
		require.NoError(t, os.RemoveAll(output))
		_, err := execute(t, args...)
		require.NoError(t, err, strings.Join(args, " "))

		got, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, wantDocument, string(got))
	}
}

func TestGenerate_Stdout(t *testing.T) {
	_, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)

	out, err := execute(t, "--rules", rulesPath, "--template", templatePath, "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, wantDocument, out)
}

func TestGenerate_ConfigFile(t *testing.T) {
	dir, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)
	output := filepath.Join(dir, "from-config.yaml")
	cfgPath := filepath.Join(dir, "ini2clash.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"sources:\n  rules: "+rulesPath+"\n  template: "+templatePath+"\noutput: "+output+"\n"), 0o644))

	_, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, wantDocument, string(got))
}

func TestGenerate_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerate_Strict(t *testing.T) {
	dir, rulesPath, templatePath := writeSources(t, cliRules, "p: &class {type: http}\nproxies: ~\n")
	output := filepath.Join(dir, "out.yaml")

	_, err := execute(t, "--rules", rulesPath, "--template", templatePath, "-o", output, "--strict")
	assert.ErrorIs(t, err, builder.ErrMissingHeader)
	assert.NoFileExists(t, output)

	_, err = execute(t, "--rules", rulesPath, "--template", templatePath, "-o", output)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestGenerate_Verify(t *testing.T) {
	dir, rulesPath, templatePath := writeSources(t, "custom_proxy_group=[a`select`[]DIRECT\n", cliTemplate)
	output := filepath.Join(dir, "out.yaml")

	_, err := execute(t, "--rules", rulesPath, "--template", templatePath, "-o", output)
	assert.ErrorIs(t, err, builder.ErrInvalidOutput)
	assert.NoFileExists(t, output)

	_, err = execute(t, "--rules", rulesPath, "--template", templatePath, "-o", output, "--no-verify")
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestGenerate_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--rules", filepath.Join(dir, "absent.ini"), "--template", filepath.Join(dir, "t.yaml"), "-o", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch rules")
}

func TestGenerate_WatchStopsOnCancel(t *testing.T) {
	_, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)
	// Both sources are local, so the first build succeeds and the watcher starts;
	// a cancelled context makes Run return at once.
	cmd := NewRootCmd("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--rules", rulesPath, "--template", templatePath, "-o", "-", "--watch", "--log-level", "error"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, cmd.ExecuteContext(ctx))
}

func TestCheck(t *testing.T) {
	rules := cliRules + "ruleset=broken\nruleset=Dup,https://mirror.example.com/google.yaml\n"
	_, rulesPath, templatePath := writeSources(t, rules, cliTemplate)

	out, err := execute(t, "check", "--rules", rulesPath, "--template", templatePath)
	require.NoError(t, err)
	assert.Equal(t, "rules: 3\nproviders: 2\ngroups: 1\n"+
		"line 4: malformed definition dropped: ruleset=broken\n"+
		"provider google_class is defined 2 times\n", out)

	_, err = execute(t, "check", "--rules", rulesPath, "--template", templatePath, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 problem(s)")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ini2clash test\n"))
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "ini2clash")

	_, err = execute(t, "completion", "powershell")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := NewRootCmd("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--log-level", "chatty"})
	// version does not load configuration.
	assert.NoError(t, cmd.Execute())

	_, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)
	cmd = NewRootCmd("test")
	cmd.SetArgs([]string{"--rules", rulesPath, "--template", templatePath, "-o", "-", "--log-level", "chatty"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestFlagsOverrideInvalidEnvAndFile(t *testing.T) {
	dir, rulesPath, templatePath := writeSources(t, cliRules, cliTemplate)
	cfgPath := filepath.Join(dir, "ini2clash.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  format: xml\n"), 0o644))
	t.Setenv("INI2CLASH_LOG_LEVEL", "chatty")

	out, err := execute(t, "--config", cfgPath, "--log-format", "json",
		"--rules", rulesPath, "--template", templatePath, "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, wantDocument, out)

	// Without the overriding flags the same values are rejected once.
	cmd := NewRootCmd("test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--rules", rulesPath, "--template", templatePath, "-o", "-"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "logging.format")
}
