package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
app:
  name: autoseat-engine
backend:
  base_url: http://localhost:9000
mpesa:
  base_url: http://localhost:9001
database:
  path: data/test.db
`

func TestLoadAppliesEngineDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.PollIntervalSeconds)
	assert.Equal(t, 40, cfg.Engine.MaxPollCycles)
	assert.Equal(t, 3, cfg.Engine.MaxTransportRetries)
	assert.Equal(t, 86400, cfg.Engine.SessionTTL)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 10, cfg.Backend.TimeoutSeconds)
}

func TestLoadFillsDefaultResultMessages(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Contains(t, cfg.Mpesa.ResultMessages["1"], "insufficient funds")
	assert.Contains(t, cfg.Mpesa.ResultMessages["1032"], "cancelled")
	assert.Contains(t, cfg.Mpesa.ResultMessages["1037"], "timed out")
	assert.Contains(t, cfg.Mpesa.ResultMessages["2001"], "PIN")
}

func TestLoadKeepsConfiguredResultMessageOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backend:
  base_url: http://localhost:9000
mpesa:
  base_url: http://localhost:9001
  result_messages:
    "1": "Custom message."
database:
  path: data/test.db
`))
	require.NoError(t, err)

	assert.Equal(t, "Custom message.", cfg.Mpesa.ResultMessages["1"])
	// unknown codes still get defaults merged in
	assert.NotEmpty(t, cfg.Mpesa.ResultMessages["1032"])
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_BACKEND_URL", "http://backend.example.com")

	cfg, err := Load(writeConfig(t, `
backend:
  base_url: ${TEST_BACKEND_URL}
mpesa:
  base_url: http://localhost:9001
database:
  path: data/test.db
`))
	require.NoError(t, err)
	assert.Equal(t, "http://backend.example.com", cfg.Backend.BaseURL)
}

func TestValidateRejectsMissingBackendURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
mpesa:
  base_url: http://localhost:9001
database:
  path: data/test.db
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend base_url")
}

func TestValidateRejectsMalformedBackendURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
backend:
  base_url: localhost:9000
mpesa:
  base_url: http://localhost:9001
database:
  path: data/test.db
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http")
}

func TestValidateRejectsMissingDatabasePath(t *testing.T) {
	_, err := Load(writeConfig(t, `
backend:
  base_url: http://localhost:9000
mpesa:
  base_url: http://localhost:9001
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
}

func TestValidateRejectsAuthWithoutKeys(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
api:
  enabled: true
  auth:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_keys")
}
