package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "tokenlists", cfg.OutputDir)
	assert.Equal(t, 2, cfg.MinProviders)
	assert.Equal(t, 20, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryUnit)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(envMap(map[string]string{
		"TOKENLISTS_DIR":     "out",
		"COINGECKO_API_KEY":  "k",
		"HTTP_TIMEOUT":       "30",
		"RETRY_UNIT":         "250ms",
		"PROVIDER_TIMEOUT":   "2m",
		"MAX_ATTEMPTS":       "0",
		"MIN_PROVIDERS":      "3",
		"STRICT":             "yes",
		"VALIDATE_ADDRESSES": "true",
		"SQLITE_PATH":        "snap.db",
		"LOG_LEVEL":          "debug",
		"LOG_OUTPUT":         "stdout, run.log",
	}))
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "k", cfg.CoinGeckoAPIKey)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryUnit)
	assert.Equal(t, 2*time.Minute, cfg.ProviderTimeout)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 3, cfg.MinProviders)
	assert.True(t, cfg.Strict)
	assert.True(t, cfg.ValidateAddresses)
	assert.Equal(t, "snap.db", cfg.SQLitePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"stdout", "run.log"}, cfg.LogOutputs())
}

func TestFromEnvRejectsMalformed(t *testing.T) {
	t.Parallel()

	for key, val := range map[string]string{
		"MAX_ATTEMPTS":  "many",
		"STRICT":        "maybe",
		"HTTP_TIMEOUT":  "soon",
		"MIN_PROVIDERS": "1",
	} {
		_, err := FromEnv(envMap(map[string]string{key: val}))
		assert.Error(t, err, "%s=%s", key, val)
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOKENLISTS_DIR=from-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("TOKENLISTS_DIR") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.OutputDir)
}

func TestLoadConfigToleratesMissingEnvFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestMaskedAPIKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                 "",
		"short":            "<masked>",
		"CG-abcdefghijklm": "CG-a...jklm",
	}
	for key, want := range cases {
		cfg := Config{CoinGeckoAPIKey: key}
		assert.Equal(t, want, cfg.MaskedAPIKey(), key)
	}
}

func TestValidateRejectsSingleProviderThreshold(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinProviders = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min providers must be >= 2")

	cfg.MinProviders = 2
	assert.NoError(t, cfg.Validate())
}
