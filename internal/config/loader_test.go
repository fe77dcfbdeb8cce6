package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for key, names := range legacyEnv {
		t.Setenv(envName(key), "")
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("load config from file", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "notemate.json")
		testConfig := `{
			"server": {"port": 8080, "allowed_origins": ["https://notemate.app"]},
			"auth": {"jwt_secret": "file-secret", "token_ttl": "24h"},
			"storage": {"backend": "memory"},
			"agent": {"action_timeout": "5s"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"https://notemate.app"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
		assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
		assert.Equal(t, "memory", cfg.Storage.Backend)
		assert.Equal(t, 5*time.Second, cfg.Agent.ActionTimeout)
		// untouched keys keep their defaults
		assert.Equal(t, 3, cfg.Agent.MaxRounds)
		assert.Equal(t, "gemini", cfg.Model.Provider)
	})

	t.Run("prefixed env overrides file", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "notemate.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"server": {"port": 8080}}`), 0644))
		t.Setenv("NOTEMATE_SERVER_PORT", "9090")
		t.Setenv("NOTEMATE_AGENT_MAX_ROUNDS", "5")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Agent.MaxRounds)
	})

	t.Run("legacy env variables", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "AIzaLegacy")
		t.Setenv("JWT_SECRET", "legacy-secret")
		t.Setenv("GOOGLE_REDIRECT_URI", "http://localhost:3000/api/auth/googlecallback")
		t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173, https://notemate.app")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "AIzaLegacy", cfg.Model.APIKey)
		assert.Equal(t, "legacy-secret", cfg.Auth.JWTSecret)
		assert.Equal(t, "http://localhost:3000/api/auth/googlecallback", cfg.Google.RedirectURL)
		assert.Equal(t, []string{"http://localhost:5173", "https://notemate.app"}, cfg.Server.AllowedOrigins)
	})

	t.Run("prefixed env wins over legacy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NOTEMATE_AUTH_JWT_SECRET", "new-secret")
		t.Setenv("JWT_SECRET", "legacy-secret")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "new-secret", cfg.Auth.JWTSecret)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "nested", "notemate.json")
	loader := NewLoader(configPath)

	cfg := validConfig()
	cfg.Server.Port = 4000
	cfg.Storage.Backend = "memory"
	require.NoError(t, loader.Save(cfg))
	assert.FileExists(t, configPath)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, loaded.Server.Port)
	assert.Equal(t, "memory", loaded.Storage.Backend)
	assert.Equal(t, cfg.Auth.JWTSecret, loaded.Auth.JWTSecret)
	assert.Equal(t, cfg.Agent.ActionTimeout, loaded.Agent.ActionTimeout)
}

func TestLoaderWatch(t *testing.T) {
	t.Run("requires a loaded file", func(t *testing.T) {
		clearEnv(t)
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))
		_, err := loader.Load()
		require.NoError(t, err)

		assert.ErrorIs(t, loader.Watch(func(*Config) {}, nil), ErrNoConfigFile)
	})

	t.Run("reloads on change", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "notemate.json")
		write := func(origin string) {
			body := `{"auth": {"jwt_secret": "s"}, "model": {"api_key": "AIzaKey"},` +
				` "server": {"allowed_origins": ["` + origin + `"]}}`
			require.NoError(t, os.WriteFile(configPath, []byte(body), 0644))
		}
		write("http://localhost:5173")

		loader := NewLoader(configPath)
		_, err := loader.Load()
		require.NoError(t, err)

		var latest atomic.Value
		require.NoError(t, loader.Watch(func(c *Config) {
			latest.Store(c.Server.AllowedOrigins)
		}, nil))

		write("https://notemate.app")

		require.Eventually(t, func() bool {
			origins, ok := latest.Load().([]string)
			return ok && len(origins) == 1 && origins[0] == "https://notemate.app"
		}, 5*time.Second, 20*time.Millisecond)
	})
}
