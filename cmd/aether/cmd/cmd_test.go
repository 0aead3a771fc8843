package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/testutil"
)

// executeCommand runs the root command with args and returns what it wrote
// to stdout and stderr. Flag variables are reset afterwards because cobra
// keeps them between runs.
func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		cfgFile = ""
		initForce = false
		analyzeOutput = ""
		analyzeFormat = ""
		analyzeDryRun = false
		analyzePlain = false
		analyzeCopy = false
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes the default configuration to a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aether.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config.DefaultConfigYAML), 0o600))
	return path
}

func TestRootCmd_Structure(t *testing.T) {
	assert.Equal(t, "aether", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range []string{"serve", "analyze", "init", "version"} {
		assert.True(t, registered[name], "%s command not registered", name)
	}

	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestServeCommandFlags(t *testing.T) {
	host := serveCmd.Flags().Lookup("host")
	require.NotNil(t, host)
	assert.Equal(t, "localhost", host.DefValue)

	port := serveCmd.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "3001", port.DefValue)
	assert.Equal(t, "p", port.Shorthand)
	assert.NotNil(t, serveCmd.RunE)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	t.Cleanup(func() { SetVersion("", "", "") })

	out, _, err := executeCommand(t, "", "version")
	require.NoError(t, err)

	assert.Contains(t, out, "aether v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".aether.yaml")

	out, _, err := executeCommand(t, "", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, string(data))

	t.Run("refuses to overwrite", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

		_, _, err := executeCommand(t, "", "init", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "log:\n  level: debug\n", string(data))
	})

	t.Run("force overwrites", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "init", "--config", path, "--force")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultConfigYAML, string(data))
	})
}

func TestAnalyze_DryRunWritesJSON(t *testing.T) {
	cfgPath := writeConfig(t)
	dir := t.TempDir()
	docPath := filepath.Join(dir, "q3.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(testutil.RevenueReport), 0o600))
	outPath := filepath.Join(dir, "out", "q3.json")

	_, stderr, err := executeCommand(t, "", "analyze", docPath,
		"--config", cfgPath, "--dry-run", "--output", outPath)
	require.NoError(t, err)

	assert.Contains(t, stderr, "[EXTRACTING_FACTORS]")
	assert.Contains(t, stderr, "[COMPLETE]")
	assert.Contains(t, stderr, "Wrote "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var snap core.SessionSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, core.StateComplete, snap.State)
	assert.Len(t, snap.Factors, 3)
	assert.Len(t, snap.Debates, 3)
	require.NotNil(t, snap.FinalReport)
	assert.Equal(t, 3, snap.FinalReport.FactorsAnalyzed)
	assert.False(t, snap.FinalReport.IsPartial)
	assert.Equal(t, "q3.txt", snap.Document.Filename)
}

func TestAnalyze_DryRunYAMLByFlag(t *testing.T) {
	cfgPath := writeConfig(t)
	dir := t.TempDir()
	docPath := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(docPath, []byte("# Notes\n\nSales rose 10%."), 0o600))
	outPath := filepath.Join(dir, "result.out")

	_, _, err := executeCommand(t, "", "analyze", docPath,
		"--config", cfgPath, "--dry-run", "--output", outPath, "--format", "yaml")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "state: COMPLETE")
	assert.Contains(t, string(data), "verdict: Mixed results")
}

func TestAnalyze_DryRunPrintsMarkdownFromStdin(t *testing.T) {
	cfgPath := writeConfig(t)

	out, _, err := executeCommand(t, testutil.RevenueReport, "analyze", "-",
		"--config", cfgPath, "--dry-run")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "---\n"), "frontmatter expected, got %q", out)
	assert.Contains(t, out, "state: COMPLETE")
	assert.Contains(t, out, "# Analysis Report")
	assert.Contains(t, out, "### 1. Stated Outcomes")
	assert.Contains(t, out, "**⚖️ Verdict**: Mixed results (confidence: low)")
}

func TestAnalyze_Rejections(t *testing.T) {
	cfgPath := writeConfig(t)
	dir := t.TempDir()

	pdf := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7\n1 0 obj\n"), 0o600))
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	doc := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(doc, []byte("text"), 0o600))

	t.Run("unsupported type", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "analyze", pdf, "--config", cfgPath, "--dry-run")
		require.Error(t, err)
		assert.True(t, core.IsUnsupportedInput(err))
		assert.Contains(t, err.Error(), pdf)
	})

	t.Run("empty document", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "analyze", empty, "--config", cfgPath, "--dry-run")
		require.Error(t, err)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation))
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "analyze", filepath.Join(dir, "nope.txt"), "--config", cfgPath, "--dry-run")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening document")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "analyze", doc, "--config", cfgPath, "--dry-run",
			"--output", filepath.Join(dir, "out.pdf"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UNKNOWN_FORMAT")
	})

	t.Run("no file argument", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "analyze")
		require.Error(t, err)
	})
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		output string
		flag   string
		want   string
	}{
		{"", "", "markdown"},
		{"report.md", "", "markdown"},
		{"report.json", "", "json"},
		{"report.yml", "", "yaml"},
		{"report.json", "yaml", "yaml"},
		{"report", "", "markdown"},
	}
	for _, tt := range tests {
		t.Run(tt.output+"/"+tt.flag, func(t *testing.T) {
			got, err := outputFormat(tt.output, tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
