// Package config provides application configuration management using Viper.
// Values come from defaults, an optional config.yaml and environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Chat      ChatConfig
	LLM       LLMConfig
	Anthropic AnthropicConfig
	Cohere    CohereConfig
	Gemini    GeminiConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	Leads     LeadsConfig
	Handoff   HandoffConfig
	Admin     AdminConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds per-client rate limiting for the chat endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Session store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// ChatConfig holds conversation behaviour settings.
type ChatConfig struct {
	SessionStore           string
	SessionTTL             time.Duration
	SweepInterval          time.Duration
	MaxMessageLength       int
	AllowedOrigins         []string
	FreeformFallback       bool
	SurfaceHandoffFailures bool
	TurnTimeout            time.Duration
}

// Model providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderCohere    = "cohere"
	ProviderGemini    = "gemini"
)

// LLMConfig selects the language-model provider and per-call parameters.
type LLMConfig struct {
	Provider                string
	Timeout                 time.Duration
	ClassifyTemperature     float64
	ClassifyMaxTokens       int
	ReplyTemperature        float64
	ReplyMaxTokens          int
	CircuitFailureThreshold int
	CircuitOpenTimeout      time.Duration
}

// AnthropicConfig holds Claude API settings.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// CohereConfig holds Cohere chat API settings.
type CohereConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// Lead sinks.
const (
	SinkLog      = "log"
	SinkPostgres = "postgres"
	SinkMongo    = "mongo"
)

// LeadsConfig selects where completed leads and bookings are stored.
type LeadsConfig struct {
	Sink string
}

// HandoffConfig tunes the asynchronous hand-off dispatcher.
type HandoffConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// AdminConfig guards the read-only admin endpoints.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// Enabled reports whether the admin endpoints should be mounted.
func (a *AdminConfig) Enabled() bool {
	return a.PasswordHash != ""
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/coral")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := fromViper(v)
	cfg.applyEnvironmentDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Environment:     v.GetString("server.env"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("rate_limit.requests_per_second"),
			Burst:             v.GetInt("rate_limit.burst"),
		},
		Chat: ChatConfig{
			SessionStore:           strings.ToLower(v.GetString("chat.session_store")),
			SessionTTL:             v.GetDuration("chat.session_ttl"),
			SweepInterval:          v.GetDuration("chat.sweep_interval"),
			MaxMessageLength:       v.GetInt("chat.max_message_length"),
			AllowedOrigins:         splitList(v.GetString("chat.allowed_origins")),
			FreeformFallback:       v.GetBool("chat.freeform_fallback"),
			SurfaceHandoffFailures: v.GetBool("chat.surface_handoff_failures"),
			TurnTimeout:            v.GetDuration("chat.turn_timeout"),
		},
		LLM: LLMConfig{
			Provider:                strings.ToLower(v.GetString("llm.provider")),
			Timeout:                 v.GetDuration("llm.timeout"),
			ClassifyTemperature:     v.GetFloat64("llm.classify_temperature"),
			ClassifyMaxTokens:       v.GetInt("llm.classify_max_tokens"),
			ReplyTemperature:        v.GetFloat64("llm.reply_temperature"),
			ReplyMaxTokens:          v.GetInt("llm.reply_max_tokens"),
			CircuitFailureThreshold: v.GetInt("llm.circuit_failure_threshold"),
			CircuitOpenTimeout:      v.GetDuration("llm.circuit_open_timeout"),
		},
		Anthropic: AnthropicConfig{
			APIKey:  v.GetString("anthropic.api_key"),
			Model:   v.GetString("anthropic.model"),
			BaseURL: v.GetString("anthropic.base_url"),
		},
		Cohere: CohereConfig{
			APIKey:  v.GetString("cohere.api_key"),
			Model:   v.GetString("cohere.model"),
			BaseURL: v.GetString("cohere.base_url"),
		},
		Gemini: GeminiConfig{
			APIKey: v.GetString("gemini.api_key"),
			Model:  v.GetString("gemini.model"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Leads: LeadsConfig{
			Sink: strings.ToLower(v.GetString("leads.sink")),
		},
		Handoff: HandoffConfig{
			Workers:        v.GetInt("handoff.workers"),
			QueueSize:      v.GetInt("handoff.queue_size"),
			MaxAttempts:    v.GetInt("handoff.max_attempts"),
			InitialBackoff: v.GetDuration("handoff.initial_backoff"),
			MaxBackoff:     v.GetDuration("handoff.max_backoff"),
		},
		Admin: AdminConfig{
			Username:     v.GetString("admin.username"),
			PasswordHash: v.GetString("admin.password_hash"),
		},
	}
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")

	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("chat.session_store", StoreMemory)
	v.SetDefault("chat.session_ttl", "2h")
	v.SetDefault("chat.sweep_interval", "5m")
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("chat.allowed_origins", "*")
	v.SetDefault("chat.freeform_fallback", false)
	v.SetDefault("chat.surface_handoff_failures", false)
	v.SetDefault("chat.turn_timeout", "45s")

	v.SetDefault("llm.provider", ProviderCohere)
	v.SetDefault("llm.timeout", "20s")
	v.SetDefault("llm.classify_temperature", 0.3)
	v.SetDefault("llm.classify_max_tokens", 10)
	v.SetDefault("llm.reply_temperature", 0.7)
	v.SetDefault("llm.reply_max_tokens", 120)
	v.SetDefault("llm.circuit_failure_threshold", 5)
	v.SetDefault("llm.circuit_open_timeout", "30s")

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("cohere.model", "command-r")
	v.SetDefault("cohere.base_url", "https://api.cohere.ai")
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "coral")
	v.SetDefault("database.name", "coral")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)
	v.SetDefault("database.connection_max_lifetime", "5m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "coral:session:")

	v.SetDefault("mongo.database", "coral")

	v.SetDefault("leads.sink", SinkLog)

	v.SetDefault("handoff.workers", 2)
	v.SetDefault("handoff.queue_size", 100)
	v.SetDefault("handoff.max_attempts", 5)
	v.SetDefault("handoff.initial_backoff", "500ms")
	v.SetDefault("handoff.max_backoff", "30s")

	v.SetDefault("admin.username", "admin")
}

// Validate checks that all required configuration values are present and
// reports every problem at once.
func (c *Config) Validate() error {
	var missing []string
	var invalid []string

	switch c.LLM.Provider {
	case ProviderNone:
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	case ProviderCohere:
		if c.Cohere.APIKey == "" {
			missing = append(missing, "COHERE_API_KEY")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("llm.provider=%q", c.LLM.Provider))
	}

	needPostgres := false
	switch c.Chat.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	case StorePostgres:
		needPostgres = true
	default:
		invalid = append(invalid, fmt.Sprintf("chat.session_store=%q", c.Chat.SessionStore))
	}

	switch c.Leads.Sink {
	case SinkLog:
	case SinkPostgres:
		needPostgres = true
	case SinkMongo:
		if c.Mongo.URI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("leads.sink=%q", c.Leads.Sink))
	}

	if needPostgres && c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}

	if c.IsProduction() && slices.Contains(c.Chat.AllowedOrigins, "*") {
		invalid = append(invalid, "chat.allowed_origins must list explicit origins in production")
	}

	if c.Chat.MaxMessageLength <= 0 {
		invalid = append(invalid, "chat.max_message_length must be positive")
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(invalid, ", "))
	}
	if len(parts) > 0 {
		return errors.New(strings.Join(parts, "; "))
	}
	return nil
}

// UsesPostgres reports whether any component needs the database pool.
func (c *Config) UsesPostgres() bool {
	return c.Chat.SessionStore == StorePostgres || c.Leads.Sink == SinkPostgres
}

// applyEnvironmentDefaults fills settings whose default depends on
// server.env. Development logs to the console; everything else logs JSON.
func (c *Config) applyEnvironmentDefaults() {
	if c.Log.Format == "" {
		c.Log.Format = "json"
		if c.IsDevelopment() {
			c.Log.Format = "console"
		}
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
