package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ProviderSection(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "debug"

[providers.box]
client_id = "box-client"
client_secret = "box-secret"

[providers.yandex]
client_id = "ya-client"
api_base = "http://127.0.0.1:9999/v1/disk"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)

	box, err := cfg.ProviderConfig(cloud.ProviderBox)
	require.NoError(t, err)
	assert.Equal(t, "box-client", box.ClientID)
	assert.Equal(t, "box-secret", box.ClientSecret)

	// Defaults survive under the overrides.
	assert.Equal(t, "https://api.box.com/2.0", box.APIBase)
	assert.Equal(t, "https://upload.box.com/api/2.0", box.ContentBase)

	yandex, err := cfg.ProviderConfig(cloud.ProviderYandex)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/v1/disk", yandex.APIBase)
	assert.Equal(t, "https://oauth.yandex.com/token", yandex.TokenURL)
}

func TestLoad_UnknownKeySuggestsClosest(t *testing.T) {
	path := writeTestConfig(t, `
[providers.dropbox]
client_idd = "oops"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"client_id"`)
}

func TestLoad_UnknownProviderSection(t *testing.T) {
	path := writeTestConfig(t, `
[providers.gdrive]
client_id = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider section")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeTestConfig(t, `log_level = "loud"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	// Providers with published endpoints resolve without any file.
	onedrive, err := cfg.ProviderConfig(cloud.ProviderOneDrive)
	require.NoError(t, err)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", onedrive.APIBase)
	assert.Contains(t, onedrive.Scopes, "offline_access")
}

func TestProviderConfig_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()

	_, err := cfg.ProviderConfig(cloud.Provider("gdrive"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known:")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("token_url", "token_url"))
	assert.Equal(t, 1, levenshtein("token_uri", "token_url"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Empty(t, closestMatch("completely_different", knownKeysList))
}

func TestResolveDataDir_ConfigWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/anycloud-test"

	assert.Equal(t, "/tmp/anycloud-test", cfg.ResolveDataDir())
}
