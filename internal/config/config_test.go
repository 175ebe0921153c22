package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_CreatesDefaultIfMissing(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.PollTimeout)
	assert.False(t, cfg.Catalog.Direct)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, filepath.Join(tmpHome, ".local", "share", "oceanctl", "keyring"), cfg.Keyring.FileDir)
	assert.Equal(t, filepath.Join(tmpHome, ".local", "share", "oceanctl", "jobs.json"), cfg.Jobs.Journal)
	assert.NoError(t, cfg.Validate())

	_, err = os.Stat(loader.Path())
	assert.NoError(t, err)
}

func TestLoader_Load_ReadsExistingConfig(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "oceanctl")
	require.NoError(t, os.MkdirAll(configDir, 0755))

	configContent := `
api:
  base_url: https://ocean.example.org/api/v1/
  timeout: 10s
catalog:
  default_server: noaa
  direct: true
jobs:
  poll_interval: 2s
keyring:
  backend: file
  file_dir: ~/secrets
log:
  format: json
`
	require.NoError(t, os.WriteFile(
		filepath.Join(configDir, "config.yaml"),
		[]byte(configContent),
		0644,
	))

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://ocean.example.org/api/v1/", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "noaa", cfg.Catalog.DefaultServer)
	assert.True(t, cfg.Catalog.Direct)
	assert.Equal(t, 2*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.PollTimeout, "unset keys keep defaults")
	assert.Equal(t, "file", cfg.Keyring.Backend)
	assert.Equal(t, filepath.Join(tmpHome, "secrets"), cfg.Keyring.FileDir)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_Load_EnvVarOverride(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("OCEANCTL_API_URL", "http://env.example.org/api/v1/")
	t.Setenv("OCEANCTL_SERVER", "ioos")
	t.Setenv("OCEANCTL_LOG_FORMAT", "logfmt")

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.org/api/v1/", cfg.API.BaseURL)
	assert.Equal(t, "ioos", cfg.Catalog.DefaultServer)
	assert.Equal(t, "logfmt", cfg.Log.Format)
}

func TestLoader_Path(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	expected := filepath.Join(tmpHome, ".config", "oceanctl", "config.yaml")
	assert.Equal(t, expected, loader.Path())
}

func TestLoader_Get(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	_, err = loader.Load()
	require.NoError(t, err)

	t.Run("valid key returns value", func(t *testing.T) {
		val, err := loader.Get("api.base_url")
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, val)
	})

	t.Run("section returns nested values", func(t *testing.T) {
		val, err := loader.Get("jobs")
		require.NoError(t, err)
		assert.IsType(t, map[string]any{}, val)
	})

	t.Run("invalid key returns error", func(t *testing.T) {
		_, err := loader.Get("invalid.key")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestLoader_Set(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	_, err = loader.Load()
	require.NoError(t, err)

	t.Run("sets valid key", func(t *testing.T) {
		require.NoError(t, loader.Set("catalog.default_server", "noaa"))

		val, err := loader.Get("catalog.default_server")
		require.NoError(t, err)
		assert.Equal(t, "noaa", val)
	})

	t.Run("persists to file", func(t *testing.T) {
		require.NoError(t, loader.Set("jobs.poll_interval", "1s"))

		fresh, err := NewLoader()
		require.NoError(t, err)
		cfg, err := fresh.Load()
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Jobs.PollInterval)
		assert.Equal(t, "noaa", cfg.Catalog.DefaultServer)
	})

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{name: "rejects invalid key", key: "invalid.key", value: "x", wantErr: ErrInvalidKey},
		{name: "rejects section", key: "api", value: "x", wantErr: ErrInvalidKey},
		{name: "rejects malformed url", key: "api.base_url", value: "not a url", wantErr: ErrInvalidValue},
		{name: "rejects malformed duration", key: "jobs.poll_interval", value: "soon", wantErr: ErrInvalidValue},
		{name: "rejects zero poll interval", key: "jobs.poll_interval", value: "0s", wantErr: ErrInvalidValue},
		{name: "rejects unknown backend", key: "keyring.backend", value: "vault", wantErr: ErrInvalidValue},
		{name: "rejects unknown log format", key: "log.format", value: "xml", wantErr: ErrInvalidValue},
		{name: "rejects malformed bool", key: "catalog.direct", value: "maybe", wantErr: ErrInvalidValue},
		{name: "accepts bool", key: "catalog.direct", value: "true"},
		{name: "accepts backend", key: "keyring.backend", value: "file"},
		{name: "allows empty backend", key: "keyring.backend", value: ""},
		{name: "accepts metrics address", key: "metrics.addr", value: "localhost:9090"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.Set(tt.key, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:  APIConfig{BaseURL: DefaultBaseURL, Timeout: time.Second},
			Jobs: JobsConfig{PollInterval: time.Second, Journal: "/tmp/jobs.json"},
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing base url", func(t *testing.T) {
		cfg := valid()
		cfg.API.BaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero poll interval", func(t *testing.T) {
		cfg := valid()
		cfg.Jobs.PollInterval = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown log format", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Format = "xml"
		assert.Error(t, cfg.Validate())
	})
}

func TestValidateKey(t *testing.T) {
	for _, key := range Keys() {
		assert.NoError(t, ValidateKey(key), key)
	}
	assert.NoError(t, ValidateKey("keyring"))
	assert.ErrorIs(t, ValidateKey(""), ErrInvalidKey)
	assert.ErrorIs(t, ValidateKey("api.base"), ErrInvalidKey)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{
		"api.base_url",
		"api.timeout",
		"catalog.default_server",
		"catalog.direct",
		"jobs.poll_interval",
		"jobs.poll_timeout",
		"jobs.journal",
		"keyring.backend",
		"keyring.file_dir",
		"log.format",
		"metrics.addr",
	}, Keys())
}
