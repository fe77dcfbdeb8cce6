package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid keys", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-test123", "anthropic"))
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
		assert.NoError(t, v.ValidateAPIKey("AIzaSyTest", "gemini"))
	})

	t.Run("empty key", func(t *testing.T) {
		err := v.ValidateAPIKey("", "gemini")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("wrong prefix", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("sk-test123", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("invalid", "openai"))
		assert.Error(t, v.ValidateAPIKey("sk-test", "gemini"))
	})
}

func TestValidateOrigin(t *testing.T) {
	v := NewValidator()

	for _, origin := range []string{"*", "http://localhost:5173", "https://notemate.app", "https://notemate.app/"} {
		assert.NoError(t, v.ValidateOrigin(origin), origin)
	}
	for _, origin := range []string{"localhost:5173", "ftp://notemate.app", "https://", "https://notemate.app/app", "http://a.b?x=1"} {
		assert.Error(t, v.ValidateOrigin(origin), origin)
	}
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	err := v.ValidateLogLevel("verbose")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("collects every finding", func(t *testing.T) {
		cfg := validConfig()
		cfg.Model.APIKey = "bogus"
		cfg.Auth.JWTSecret = "short"
		cfg.Server.AllowedOrigins = []string{"localhost"}
		cfg.Logging.Level = "loud"
		cfg.Tracing.SampleRatio = 2

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})
}
