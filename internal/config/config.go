// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables before mapping them onto
// config keys, e.g. SUPPORT_SERVER_ADDR -> server.addr.
const envPrefix = "SUPPORT_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	LLM      LLMConfig      `koanf:"llm"`
	Approval ApprovalConfig `koanf:"approval"`
	Notify   NotifyConfig   `koanf:"notify"`
	Engine   EngineConfig   `koanf:"engine"`
	Drift    DriftConfig    `koanf:"drift"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	MetricsAddr     string        `koanf:"metrics_addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// LLMConfig contains settings for the plan generation model.
type LLMConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model" validate:"required"`
	Temperature float64       `koanf:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `koanf:"max_tokens" validate:"min=1"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ApprovalConfig contains human approval gate settings. An empty webhook URL
// disables the outbound channel; requests then time out and escalate.
type ApprovalConfig struct {
	WebhookURL   string        `koanf:"webhook_url" validate:"omitempty,url"`
	WaitTimeout  time.Duration `koanf:"wait_timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// NotifyConfig contains outbound notification settings. An empty webhook URL
// disables the sender; sends are logged and skipped.
type NotifyConfig struct {
	WebhookURL    string  `koanf:"webhook_url" validate:"omitempty,url"`
	RatePerSecond float64 `koanf:"rate_per_second" validate:"min=0"`
	Burst         int     `koanf:"burst" validate:"min=1"`
}

// EngineConfig contains resolution pipeline settings.
type EngineConfig struct {
	MaxAutoFixAttempts int           `koanf:"max_auto_fix_attempts" validate:"min=1"`
	EscalationCooldown time.Duration `koanf:"escalation_cooldown"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	AutopatchDir       string        `koanf:"autopatch_dir" validate:"required"`
	KnowledgeDir       string        `koanf:"knowledge_dir"`
	ProjectRoot        string        `koanf:"project_root"`
}

// DriftConfig contains external API drift monitoring settings.
type DriftConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
}

// Load reads configuration from the YAML file at path, applies environment
// overrides and validates the result. The file may be absent, in which case
// defaults plus environment variables are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// Only the first underscore separates the section from the key,
	// e.g. SUPPORT_DATABASE_MAX_OPEN_CONNS -> database.max_open_conns.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.Replace(key, "_", ".", 1), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Approval: ApprovalConfig{
			WaitTimeout:  30 * time.Minute,
			PollInterval: 5 * time.Second,
		},
		Notify: NotifyConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
		Engine: EngineConfig{
			MaxAutoFixAttempts: 3,
			EscalationCooldown: 30 * time.Minute,
			PollInterval:       30 * time.Second,
			AutopatchDir:       "docs/autopatch",
			KnowledgeDir:       "docs/knowledge",
			ProjectRoot:        ".",
		},
		Drift: DriftConfig{
			Enabled:  true,
			Schedule: "0 */6 * * *",
		},
	}
}
