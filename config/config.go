package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string        `mapstructure:"address"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// SeedUsers creates the initial admin/user accounts when the users table
	// is empty. Intended for development environments only.
	SeedUsers bool `mapstructure:"seed_users"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	return nil
}

// WorkflowConfig tunes the agent workflow engine.
type WorkflowConfig struct {
	TopK         int           `mapstructure:"top_k"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	EventBuffer  int           `mapstructure:"event_buffer"`
}

// Normalize applies defaults for unset workflow values.
func (w WorkflowConfig) Normalize() WorkflowConfig {
	if w.TopK <= 0 {
		w.TopK = 3
	}
	if w.CallTimeout <= 0 {
		w.CallTimeout = 30 * time.Second
	}
	if w.MaxRetries < 0 {
		w.MaxRetries = 0
	}
	if w.RetryBackoff <= 0 {
		w.RetryBackoff = 500 * time.Millisecond
	}
	if w.EventBuffer <= 0 {
		w.EventBuffer = 64
	}
	return w
}

// GuardrailConfig extends the built-in input policy. Entries are matched
// case-insensitively as substrings of the raw query.
type GuardrailConfig struct {
	DeniedPhrases  []string `mapstructure:"denied_phrases"`
	DevOpsKeywords []string `mapstructure:"devops_keywords"`
}

// LLMConfig contains the reasoning provider configuration.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig contains web search settings.
type SearchConfig struct {
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains relational storage settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains chat history storage settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Addr returns the host:port pair for the redis client.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file and DEVOPS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8088")
	viper.SetDefault("server.token_ttl", 24*time.Hour)
	viper.SetDefault("server.seed_users", false)
	viper.SetDefault("workflow.top_k", 3)
	viper.SetDefault("workflow.call_timeout", 30*time.Second)
	viper.SetDefault("workflow.max_retries", 0)
	viper.SetDefault("workflow.retry_backoff", 500*time.Millisecond)
	viper.SetDefault("workflow.event_buffer", 64)
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 2048)
	viper.SetDefault("llm.timeout", 30*time.Second)
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", 15*time.Second)
	viper.SetDefault("storage.redis.ttl", 24*time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEVOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	config.Workflow = config.Workflow.Normalize()

	if err := config.Server.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
