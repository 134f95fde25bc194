package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/scan"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ".", cfg.Project)
	assert.Equal(t, "audit_report.json", cfg.Out)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, scan.DefaultMaxDepth, cfg.Traversal.MaxDepth)
	assert.Equal(t, scan.DefaultMaxVisits, cfg.Traversal.MaxVisits)

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err), "compromised list is required")
}

func TestLoad(t *testing.T) {
	t.Setenv("AUDIT_LISTS", "/etc/npm-audit")
	path := writeFile(t, "npm-audit.yaml", `
compromised: ${AUDIT_LISTS}/compromised.txt
out: report.json.zst
fail_on_match: true
log:
  level: debug
  format: json
traversal:
  max_depth: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/npm-audit/compromised.txt", cfg.Compromised)
	assert.Equal(t, "report.json.zst", cfg.Out)
	assert.Equal(t, ".", cfg.Project, "unset keys keep defaults")
	assert.True(t, cfg.FailOnMatch)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Traversal.MaxDepth)
	assert.Equal(t, scan.DefaultMaxVisits, cfg.Traversal.MaxVisits)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	_, err = Load(writeFile(t, "bad.yaml", "compromised: [unterminated"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	_, err = Load(writeFile(t, "unknown.yaml", "compromsied: typo.txt\n"))
	require.Error(t, err, "unknown keys are rejected")

	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"NPM_AUDIT_COMPROMISED":   "list.txt",
		"NPM_AUDIT_PROJECT":       "/srv/app",
		"NPM_AUDIT_OUT":           "",
		"NPM_AUDIT_FAIL_ON_MATCH": "true",
		"NPM_AUDIT_MAX_VISITS":    "500",
		"NO_COLOR":                "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "list.txt", cfg.Compromised)
	assert.Equal(t, "/srv/app", cfg.Project)
	assert.Equal(t, DefaultOut, cfg.Out, "empty values are ignored")
	assert.True(t, cfg.FailOnMatch)
	assert.Equal(t, 500, cfg.Traversal.MaxVisits)
	assert.True(t, cfg.Log.NoColor)
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"NPM_AUDIT_MAX_DEPTH":     "deep",
		"NPM_AUDIT_FAIL_ON_MATCH": "sometimes",
	}))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "NPM_AUDIT_MAX_DEPTH")
	assert.Contains(t, err.Error(), "NPM_AUDIT_FAIL_ON_MATCH")
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(""))
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := writeFile(t, ".env", "NPM_AUDIT_TEST_DOTENV=from-file\n")
	t.Setenv("NPM_AUDIT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("NPM_AUDIT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("NPM_AUDIT_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Compromised = "list.txt"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty out", func(c *Config) { c.Out = " " }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero depth", func(c *Config) { c.Traversal.MaxDepth = 0 }},
		{"negative visits", func(c *Config) { c.Traversal.MaxVisits = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
		})
	}

	assert.NoError(t, base().Validate())

	opts := base().ScanOptions(nil)
	assert.Equal(t, scan.DefaultMaxDepth, opts.MaxDepth)
}
