package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator performs format checks that Config.Validate leaves out.
// Its findings are reported as warnings by `notemate config validate`.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateOrigin checks that an allowed origin is a bare scheme://host[:port].
func (v *Validator) ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid origin %q (scheme must be http or https)", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid origin %q (missing host)", origin)
	}
	if strings.TrimSuffix(u.Path, "/") != "" || u.RawQuery != "" {
		return fmt.Errorf("invalid origin %q (must not contain a path or query)", origin)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSampleRatio validates the trace sampling ratio
func (v *Validator) ValidateSampleRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %f", ratio)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Model.APIKey != "" {
		provider := cfg.Model.Provider
		if provider == "" {
			provider = "gemini"
		}
		if err := v.ValidateAPIKey(cfg.Model.APIKey, provider); err != nil {
			errors = append(errors, err)
		}
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		if err := v.ValidateOrigin(origin); err != nil {
			errors = append(errors, fmt.Errorf("server.allowed_origins: %w", err))
		}
	}
	if cfg.Server.FrontendURL != "" {
		if u, err := url.Parse(cfg.Server.FrontendURL); err != nil || u.Host == "" {
			errors = append(errors, fmt.Errorf("server.frontend_url %q is not an absolute URL", cfg.Server.FrontendURL))
		}
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit_per_minute must be >= 0"))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errors = append(errors, fmt.Errorf("server.max_body_bytes must be >= 0"))
	}

	if len(cfg.Auth.JWTSecret) > 0 && len(cfg.Auth.JWTSecret) < 32 {
		errors = append(errors, fmt.Errorf("auth.jwt_secret should be at least 32 characters"))
	}
	if cfg.Agent.ModelRetries < 0 {
		errors = append(errors, fmt.Errorf("agent.model_retries must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateSampleRatio(cfg.Tracing.SampleRatio); err != nil {
		errors = append(errors, err)
	}

	return errors
}
