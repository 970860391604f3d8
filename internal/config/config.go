// Package config provides client configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration values loaded from file or environment variables.
type Config struct {
	Env string `mapstructure:"APP_ENV"`

	AuthAPIURL      string `mapstructure:"AUTH_API_URL"`
	SocialAPIURL    string `mapstructure:"SOCIAL_API_URL"`
	UserAPIURL      string `mapstructure:"USER_API_URL"`
	MessagingAPIURL string `mapstructure:"MESSAGING_API_URL"`
	SearchAPIURL    string `mapstructure:"SEARCH_API_URL"`
	PointsAPIURL    string `mapstructure:"POINTS_API_URL"`
	MediaAPIURL     string `mapstructure:"MEDIA_API_URL"`
	RealtimeURL     string `mapstructure:"REALTIME_URL"`

	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReconnectInitial    time.Duration `mapstructure:"RECONNECT_INITIAL_INTERVAL"`
	ReconnectMaxElapsed time.Duration `mapstructure:"RECONNECT_MAX_ELAPSED"`

	NotificationPageSize int           `mapstructure:"NOTIFICATION_PAGE_SIZE"`
	MessagePageSize      int           `mapstructure:"MESSAGE_PAGE_SIZE"`
	ChatPollInterval     time.Duration `mapstructure:"CHAT_POLL_INTERVAL"`
	MessageMaxLength     int           `mapstructure:"MESSAGE_MAX_LENGTH"`
	MutualFollowLeave    time.Duration `mapstructure:"MUTUAL_FOLLOW_LEAVE_DELAY"`

	MaxRecentSearches  int           `mapstructure:"MAX_RECENT_SEARCHES"`
	RecentSearchesPath string        `mapstructure:"RECENT_SEARCHES_PATH"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	FollowCacheTTL     time.Duration `mapstructure:"FOLLOW_CACHE_TTL"`

	FeatureFlags string `mapstructure:"FEATURE_FLAGS"`

	LogLevel        string  `mapstructure:"LOG_LEVEL"`
	LogFormat       string  `mapstructure:"LOG_FORMAT"`
	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	MetricsAddr     string  `mapstructure:"METRICS_ADDR"`
}

// LoadConfig loads client configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; environment variables and defaults cover everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Set default values for development
func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("AUTH_API_URL", "http://localhost:8375/api")
	viper.SetDefault("SOCIAL_API_URL", "http://localhost:8375/api")
	viper.SetDefault("USER_API_URL", "http://localhost:8375/api")
	viper.SetDefault("MESSAGING_API_URL", "http://localhost:8375/api")
	viper.SetDefault("SEARCH_API_URL", "http://localhost:8375/api")
	viper.SetDefault("POINTS_API_URL", "http://localhost:8375/api")
	viper.SetDefault("MEDIA_API_URL", "http://localhost:8375/api")
	viper.SetDefault("REALTIME_URL", "ws://localhost:8375/ws")
	viper.SetDefault("REQUEST_TIMEOUT", "15s")
	viper.SetDefault("RECONNECT_INITIAL_INTERVAL", "500ms")
	viper.SetDefault("RECONNECT_MAX_ELAPSED", "10m")
	viper.SetDefault("NOTIFICATION_PAGE_SIZE", 10)
	viper.SetDefault("MESSAGE_PAGE_SIZE", 20)
	viper.SetDefault("CHAT_POLL_INTERVAL", "3s")
	viper.SetDefault("MESSAGE_MAX_LENGTH", 1000)
	viper.SetDefault("MUTUAL_FOLLOW_LEAVE_DELAY", "2s")
	viper.SetDefault("MAX_RECENT_SEARCHES", 10)
	viper.SetDefault("RECENT_SEARCHES_PATH", "recent_searches.yml")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("FOLLOW_CACHE_TTL", "1m")
	viper.SetDefault("FEATURE_FLAGS", "realtime=on,chat_polling=on")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("METRICS_ADDR", "")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	for _, u := range []*string{
		&c.AuthAPIURL, &c.SocialAPIURL, &c.UserAPIURL, &c.MessagingAPIURL,
		&c.SearchAPIURL, &c.PointsAPIURL, &c.MediaAPIURL, &c.RealtimeURL,
	} {
		*u = strings.TrimRight(strings.TrimSpace(*u), "/")
	}
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and sane.
func (c *Config) Validate() error {
	apis := map[string]string{
		"AUTH_API_URL":      c.AuthAPIURL,
		"SOCIAL_API_URL":    c.SocialAPIURL,
		"USER_API_URL":      c.UserAPIURL,
		"MESSAGING_API_URL": c.MessagingAPIURL,
		"SEARCH_API_URL":    c.SearchAPIURL,
	}
	for key, raw := range apis {
		if raw == "" {
			return fmt.Errorf("%s is required", key)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", key)
		}
		if c.IsProduction() && u.Scheme != "https" {
			return fmt.Errorf("%s must use https in production", key)
		}
	}

	if c.RealtimeURL != "" {
		u, err := url.Parse(c.RealtimeURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errors.New("REALTIME_URL must be a ws:// or wss:// URL")
		}
		if c.IsProduction() && u.Scheme != "wss" {
			return errors.New("REALTIME_URL must use wss in production")
		}
	}

	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.ChatPollInterval <= 0 {
		return errors.New("CHAT_POLL_INTERVAL must be positive")
	}
	if c.NotificationPageSize < 1 || c.NotificationPageSize > 100 {
		return errors.New("NOTIFICATION_PAGE_SIZE must be between 1 and 100")
	}
	if c.MessagePageSize < 1 || c.MessagePageSize > 100 {
		return errors.New("MESSAGE_PAGE_SIZE must be between 1 and 100")
	}
	if c.MessageMaxLength < 1 {
		return errors.New("MESSAGE_MAX_LENGTH must be positive")
	}
	if c.MaxRecentSearches < 1 {
		return errors.New("MAX_RECENT_SEARCHES must be positive")
	}

	if c.ChatPollInterval < time.Second {
		log.Println("WARNING: CHAT_POLL_INTERVAL is below one second. This may overload the messaging API.")
	}

	return nil
}
