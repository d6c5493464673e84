package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spotline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://localhost/spotline"
llm:
  base_url: "https://api.example.com/v1"
  model: "test-model"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 800, cfg.LLM.MaxTokens)
	assert.Equal(t, 100*time.Millisecond, cfg.Scoring.Pace)
	assert.Equal(t, 30*time.Second, cfg.Scoring.PersonalizationDelay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://file-value"
llm:
  base_url: "https://api.example.com/v1"
  model: "test-model"
  api_key: "from-file"
`)
	t.Setenv("SPOTLINE_LLM_API_KEY", "from-env")
	t.Setenv("SPOTLINE_DB_DSN", "postgres://env-value")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://env-value", cfg.Database.DSN)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"missing dsn": `
llm:
  base_url: "https://api.example.com/v1"
  model: "m"
`,
		"missing model": `
database:
  dsn: "postgres://localhost/spotline"
llm:
  base_url: "https://api.example.com/v1"
`,
		"bad timezone": `
database:
  dsn: "postgres://localhost/spotline"
llm:
  base_url: "https://api.example.com/v1"
  model: "m"
scoring:
  timezone: "Mars/Olympus"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_TimezoneResolved(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://localhost/spotline"
llm:
  base_url: "https://api.example.com/v1"
  model: "m"
scoring:
  timezone: "Europe/Lisbon"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", cfg.Location().String())
}
