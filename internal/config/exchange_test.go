package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExchangeConfigFromYAML_ParsesAndExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BITGET_SECRET", "s3cr3t")

	path := filepath.Join(t.TempDir(), "exchange.yaml")
	contents := "api_key: my-key\nsecret_key: ${TEST_BITGET_SECRET}\npassphrase: pass\nbase_url: https://api.bitget.com\nsimulated: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadExchangeConfigFromYAML(path)
	require.NoError(t, err)
	assert.Equal(t, Secret("my-key"), cfg.APIKey)
	assert.Equal(t, Secret("s3cr3t"), cfg.SecretKey)
	assert.Equal(t, Secret("pass"), cfg.Passphrase)
	assert.Equal(t, "https://api.bitget.com", cfg.BaseURL)
	assert.True(t, cfg.Simulated)
}

func TestLoadExchangeConfigFromYAML_RejectsMissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://api.bitget.com\n"), 0o600))

	_, err := LoadExchangeConfigFromYAML(path)
	assert.Error(t, err)
}

func TestLoadExchangeConfigFromYAML_ErrorsOnMissingFile(t *testing.T) {
	_, err := LoadExchangeConfigFromYAML(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
