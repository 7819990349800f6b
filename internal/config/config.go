package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"tablechat/internal/datetime"
	"tablechat/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Booking    BookingConfig    `yaml:"booking"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Redis      RedisConfig      `yaml:"redis"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

// BookingConfig points at the restaurant booking service. With no base_url
// bookings go to the local sqlite ledger instead.
type BookingConfig struct {
	BaseURL         string      `yaml:"base_url"`
	BearerToken     string      `yaml:"bearer_token"`
	Restaurant      string      `yaml:"restaurant"`
	ChannelCode     string      `yaml:"channel_code"`
	TimeoutSeconds  int         `yaml:"timeout_seconds"`
	CacheTTLSeconds int         `yaml:"cache_ttl_seconds"`
	LedgerPath      string      `yaml:"ledger_path"`
	Retry           RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

type OracleConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SessionsConfig struct {
	MaxSessions       int `yaml:"max_sessions"`
	HistoryLimit      int `yaml:"history_limit"`
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type DialogueConfig struct {
	BareHourPolicy      string `yaml:"bare_hour_policy"`
	Timezone            string `yaml:"timezone"`
	TemplatesPath       string `yaml:"templates_path"`
	MaxDispatchAttempts int    `yaml:"max_dispatch_attempts"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// Oracle providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Booking.BaseURL != "" {
		u, err := url.Parse(c.Booking.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("booking base_url %q is not an absolute URL", c.Booking.BaseURL)
		}
		if c.Booking.BearerToken == "" {
			return errors.New("booking bearer_token is required with base_url")
		}
		if c.Booking.Restaurant == "" {
			return errors.New("booking restaurant is required with base_url")
		}
	} else if c.Booking.LedgerPath == "" {
		return errors.New("booking ledger_path is required when base_url is empty")
	}

	switch c.Oracle.Provider {
	case ProviderNone, ProviderAnthropic, ProviderOllama:
	case ProviderOpenAI:
		if c.Oracle.BaseURL == "" {
			return errors.New("oracle base_url is required for openai provider")
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}

	if _, err := datetime.ParseHourPolicy(c.Dialogue.BareHourPolicy); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Dialogue.Timezone); err != nil {
		return fmt.Errorf("invalid dialogue timezone: %w", err)
	}

	if c.Sessions.MaxSessions < 1 {
		return errors.New("sessions max_sessions must be positive")
	}

	for _, k := range c.API.Auth.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key %q has empty key", k.Name)
		}
	}
	return nil
}

// ValidateTelegram is checked only by the bot transport.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tablechat"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.BaseURL == "" && c.Booking.LedgerPath == "" {
		c.Booking.LedgerPath = "data/bookings.db"
	}
	c.Booking.BaseURL = strings.TrimRight(c.Booking.BaseURL, "/")
	if c.Booking.ChannelCode == "" {
		c.Booking.ChannelCode = "ONLINE"
	}
	if c.Booking.TimeoutSeconds == 0 {
		c.Booking.TimeoutSeconds = 30
	}
	if c.Booking.Retry.MaxAttempts == 0 {
		c.Booking.Retry.MaxAttempts = 3
	}
	if c.Booking.Retry.BaseDelayMS == 0 {
		c.Booking.Retry.BaseDelayMS = 200
	}
	if c.Booking.Retry.MaxDelayMS == 0 {
		c.Booking.Retry.MaxDelayMS = 2000
	}

	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = ProviderNone
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 30
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 512
	}
	if c.Oracle.Model == "" {
		switch c.Oracle.Provider {
		case ProviderAnthropic:
			c.Oracle.Model = "claude-3-5-haiku-latest"
		case ProviderOllama:
			c.Oracle.Model = "llama3.2"
		}
	}

	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = models.DefaultMaxSessions
	}
	if c.Sessions.HistoryLimit == 0 {
		c.Sessions.HistoryLimit = models.DefaultHistoryLimit
	}
	if c.Sessions.RateLimitMessages == 0 {
		c.Sessions.RateLimitMessages = 30
	}
	if c.Sessions.RateLimitWindow == 0 {
		c.Sessions.RateLimitWindow = 60
	}

	if c.Dialogue.Timezone == "" {
		c.Dialogue.Timezone = "Local"
	}
	if c.Dialogue.MaxDispatchAttempts == 0 {
		c.Dialogue.MaxDispatchAttempts = models.MaxDispatchAttempts
	}
}

// Timeout returns the booking call timeout.
func (b BookingConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BookingConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLSeconds) * time.Second
}

// Timeout returns the oracle call timeout.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Enabled reports whether an oracle backend is configured.
func (o OracleConfig) Enabled() bool {
	return o.Provider != "" && o.Provider != ProviderNone
}

func (s SessionsConfig) Window() time.Duration {
	return time.Duration(s.RateLimitWindow) * time.Second
}

// Location resolves the restaurant time zone.
func (d DialogueConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
