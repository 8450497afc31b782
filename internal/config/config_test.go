package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTempConfig(t, dir, "config.yaml", `
llm:
  providers:
    anthropic:
      api_key: test-key
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, 4, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, "./exports", cfg.Finish.ExportRoot)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_ExpandsEnvAndIncludes(t *testing.T) {
	dir := t.TempDir()
	writeTempConfig(t, dir, "base.yaml", `
store:
  backend: sqlite
  dsn: ${CONFIG_TEST_DSN}
`)
	path := writeTempConfig(t, dir, "config.yaml", `
$include: base.yaml
llm:
  providers:
    anthropic:
      api_key: test-key
`)

	t.Setenv("CONFIG_TEST_DSN", "/tmp/events.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/events.db", cfg.Store.DSN)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown backend",
			body: "store:\n  backend: mongo\n",
			want: "store.backend must be",
		},
		{
			name: "sqlite without dsn",
			body: "store:\n  backend: sqlite\n",
			want: "store.dsn is required",
		},
		{
			name: "default provider without entry",
			body: "llm:\n  default_provider: openai\n",
			want: "llm.providers missing entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeTempConfig(t, dir, "config.yaml", tt.body)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRetryConfig_PolicyFallsBackToDefaults(t *testing.T) {
	policy := RetryConfig{MaxAttempts: 7}.Policy()
	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, 250.0, policy.BaseMs)
}
