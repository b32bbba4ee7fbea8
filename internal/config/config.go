package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServiceName    string `env:"SERVICE_NAME" env-default:"messenger-relay"`
	Environment    string `env:"ENVIRONMENT" env-default:"development"`
	Hostname       string `env:"HOSTNAME" env-default:"messenger-relay"`
	ServerPort     string `env:"SERVER_PORT" env-default:"8080"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`
	Debug          bool   `env:"DEBUG" env-default:"false"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" env-default:"*"`

	Database Database
	Meta     Meta
	AI       AI
	Pipeline Pipeline
	AMQP     AMQP
	S3       S3
}

// Database selects and sizes the conversation store.
type Database struct {
	Driver   string `env:"DATABASE_DRIVER" env-default:"postgres"`
	URL      string `env:"DATABASE_URL" env-required:"true"`
	MaxConns int    `env:"DB_MAX_CONNS" env-default:"12"`
	MinConns int    `env:"DB_MIN_CONNS" env-default:"1"`
}

// Meta holds webhook secrets and Graph API settings shared by Messenger and WhatsApp.
type Meta struct {
	VerifyToken     string `env:"WEBHOOK_VERIFY_TOKEN" env-required:"true"`
	AppSecret       string `env:"META_APP_SECRET"`
	GraphBaseURL    string `env:"META_GRAPH_BASE_URL" env-default:"https://graph.facebook.com"`
	GraphAPIVersion string `env:"META_GRAPH_API_VERSION" env-default:"v21.0"`
}

// AI holds the fallback model settings used when a channel does not override them.
type AI struct {
	APIKeys             string  `env:"GEMINI_API_KEYS"`
	DefaultModel        string  `env:"AI_DEFAULT_MODEL" env-default:"gemini-2.0-flash-lite"`
	DefaultTemperature  float32 `env:"AI_DEFAULT_TEMPERATURE" env-default:"0.7"`
	DefaultMaxTokens    int     `env:"AI_DEFAULT_MAX_TOKENS" env-default:"1024"`
	HistoryWindow       int     `env:"AI_HISTORY_WINDOW" env-default:"10"`
	DefaultSystemPrompt string  `env:"AI_DEFAULT_SYSTEM_PROMPT" env-default:"You are a helpful customer support assistant. Answer briefly and politely."`
}

type Pipeline struct {
	ProcessTimeout         time.Duration `env:"PROCESS_TIMEOUT" env-default:"60s"`
	ChannelRefreshInterval time.Duration `env:"CHANNEL_REFRESH_INTERVAL" env-default:"1m"`
}

// AMQP configures the optional event publisher. Empty URL disables it.
type AMQP struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" env-default:"inbox.events"`
}

// S3 configures the optional media mirror. Empty bucket disables it.
type S3 struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	PublicURL       string `env:"S3_PUBLIC_URL"`
}

// Enabled reports whether enough settings are present to mirror media.
func (s S3) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if cfg.Meta.VerifyToken == "" {
		return nil, fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required")
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.AI.HistoryWindow < 0 {
		cfg.AI.HistoryWindow = 0
	}

	return &cfg, nil
}

// GeminiAPIKeys returns the comma-separated GEMINI_API_KEYS as a trimmed list.
func (c *Config) GeminiAPIKeys() []string {
	return splitList(c.AI.APIKeys)
}

// Origins returns the CORS allow-list.
func (c *Config) Origins() []string {
	origins := splitList(c.AllowedOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
