package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main notemate configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Auth    AuthConfig    `json:"auth" mapstructure:"auth"`
	Storage StorageConfig `json:"storage" mapstructure:"storage"`
	Model   ModelConfig   `json:"model" mapstructure:"model"`
	Agent   AgentConfig   `json:"agent" mapstructure:"agent"`
	Google  GoogleConfig  `json:"google" mapstructure:"google"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `json:"host" mapstructure:"host"`
	Port               int           `json:"port" mapstructure:"port"`
	AllowedOrigins     []string      `json:"allowed_origins" mapstructure:"allowed_origins"`
	FrontendURL        string        `json:"frontend_url" mapstructure:"frontend_url"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	MaxBodyBytes       int64         `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	ExposeErrorDetails bool          `json:"expose_error_details" mapstructure:"expose_error_details"`
	TrustProxy         bool          `json:"trust_proxy" mapstructure:"trust_proxy"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret  string        `json:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	BcryptCost int           `json:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// StorageConfig selects the note and user backend
type StorageConfig struct {
	Backend          string `json:"backend" mapstructure:"backend"` // sqlite, firestore, memory
	SQLitePath       string `json:"sqlite_path" mapstructure:"sqlite_path"`
	FirestoreProject string `json:"firestore_project" mapstructure:"firestore_project"`
}

// ModelConfig holds the generative model provider settings
type ModelConfig struct {
	Provider    string `json:"provider" mapstructure:"provider"` // gemini, openai, anthropic
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	BaseURL     string `json:"base_url" mapstructure:"base_url"`
	Project     string `json:"project" mapstructure:"project"`
	Location    string `json:"location" mapstructure:"location"`
	TutorModel  string `json:"tutor_model" mapstructure:"tutor_model"`
	CasualModel string `json:"casual_model" mapstructure:"casual_model"`
}

// AgentConfig bounds the work of one chat turn
type AgentConfig struct {
	MaxRounds     int           `json:"max_rounds" mapstructure:"max_rounds"`
	MaxHistory    int           `json:"max_history" mapstructure:"max_history"`
	ActionTimeout time.Duration `json:"action_timeout" mapstructure:"action_timeout"`
	ModelTimeout  time.Duration `json:"model_timeout" mapstructure:"model_timeout"`
	ModelRetries  int           `json:"model_retries" mapstructure:"model_retries"`
}

// GoogleConfig holds the Google OAuth client
type GoogleConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	RedirectURL  string `json:"redirect_url" mapstructure:"redirect_url"`
}

// Enabled reports whether any Google credential is set.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" || g.ClientSecret != "" || g.RedirectURL != ""
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile  string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig controls OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3000,
			AllowedOrigins:     []string{"http://localhost:5173"},
			FrontendURL:        "http://localhost:5173",
			RateLimitPerMinute: 120,
			MaxBodyBytes:       1 << 20,
			ShutdownTimeout:    30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			BcryptCost: 10,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "notemate.db",
		},
		Model: ModelConfig{
			Provider:    "gemini",
			Location:    "us-central1",
			TutorModel:  "learnlm-1.5-pro-experimental",
			CasualModel: "gemini-2.0-flash-exp",
		},
		Agent: AgentConfig{
			MaxRounds:     3,
			MaxHistory:    100,
			ActionTimeout: 15 * time.Second,
			ModelTimeout:  60 * time.Second,
			ModelRetries:  2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			Redaction:  true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

const redacted = "[REDACTED]"

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cp.Auth.JWTSecret)
	mask(&cp.Model.APIKey)
	mask(&cp.Google.ClientSecret)

	data, _ := json.MarshalIndent(cp, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case "firestore":
		if c.Storage.FirestoreProject == "" {
			return fmt.Errorf("storage.firestore_project is required for the firestore backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage backend %s (must be: sqlite, firestore, memory)", c.Storage.Backend)
	}

	switch c.Model.Provider {
	case "", "gemini":
		if c.Model.APIKey == "" && c.Model.Project == "" {
			return fmt.Errorf("model.api_key or model.project is required for gemini")
		}
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for %s", c.Model.Provider)
		}
	default:
		return fmt.Errorf("invalid model provider %s (must be: gemini, openai, anthropic)", c.Model.Provider)
	}

	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive")
	}
	if c.Agent.MaxHistory <= 0 {
		return fmt.Errorf("agent.max_history must be positive")
	}
	if c.Agent.ActionTimeout <= 0 {
		return fmt.Errorf("agent.action_timeout must be positive")
	}
	if c.Agent.ModelTimeout <= 0 {
		return fmt.Errorf("agent.model_timeout must be positive")
	}

	if c.Google.Enabled() && (c.Google.ClientID == "" || c.Google.ClientSecret == "" || c.Google.RedirectURL == "") {
		return fmt.Errorf("google.client_id, google.client_secret and google.redirect_url must be set together")
	}

	return nil
}
