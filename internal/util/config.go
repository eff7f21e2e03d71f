package util

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	APIBaseURL           string        `mapstructure:"API_BASE_URL"`
	WSBaseURL            string        `mapstructure:"WS_BASE_URL"`
	AccessToken          string        `mapstructure:"ACCESS_TOKEN"`
	LoginEmail           string        `mapstructure:"LOGIN_EMAIL"`
	LoginPassword        string        `mapstructure:"LOGIN_PASSWORD"`
	RedisServerAddress   string        `mapstructure:"REDIS_SERVER_ADDRESS"`
	ReconnectMaxAttempts int           `mapstructure:"RECONNECT_MAX_ATTEMPTS"`
	ReconnectBaseDelay   time.Duration `mapstructure:"RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay    time.Duration `mapstructure:"RECONNECT_MAX_DELAY"`
	PingInterval         time.Duration `mapstructure:"PING_INTERVAL"`
	TokenRefreshInterval time.Duration `mapstructure:"TOKEN_REFRESH_INTERVAL"`
	TokenRefreshWindow   time.Duration `mapstructure:"TOKEN_REFRESH_WINDOW"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DiscordBotToken      string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordChannelID     string        `mapstructure:"DISCORD_CHANNEL_ID"`
	SMTPHost             string        `mapstructure:"SMTP_HOST"`
	SMTPPort             int           `mapstructure:"SMTP_PORT"`
	SMTPUsername         string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword         string        `mapstructure:"SMTP_PASSWORD"`
	NotifyEmail          string        `mapstructure:"NOTIFY_EMAIL"`
	DevServerAddress     string        `mapstructure:"DEV_SERVER_ADDRESS"`
	TokenSecretKey       string        `mapstructure:"TOKEN_SECRET_KEY"`
	AccessTokenDuration  time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	AllowedOrigins       []string      `mapstructure:"ALLOWED_ORIGINS"`
}

// Keys without a default still have to be known to viper, otherwise
// AutomaticEnv never surfaces them to Unmarshal.
var envOnlyKeys = []string{
	"ACCESS_TOKEN",
	"LOGIN_EMAIL",
	"LOGIN_PASSWORD",
	"REDIS_SERVER_ADDRESS",
	"DISCORD_BOT_TOKEN",
	"DISCORD_CHANNEL_ID",
	"SMTP_HOST",
	"SMTP_USERNAME",
	"SMTP_PASSWORD",
	"NOTIFY_EMAIL",
	"TOKEN_SECRET_KEY",
}

// LoadConfig reads configuration from file or environment variables.
// A missing file is not an error so the client can run from the environment alone.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	// Set defaults for non-sensitive config
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("WS_BASE_URL", "ws://localhost:8080/ws")
	v.SetDefault("RECONNECT_MAX_ATTEMPTS", 5)
	v.SetDefault("RECONNECT_BASE_DELAY", "1s")
	v.SetDefault("RECONNECT_MAX_DELAY", "30s")
	v.SetDefault("PING_INTERVAL", "30s")
	v.SetDefault("TOKEN_REFRESH_INTERVAL", "1m")
	v.SetDefault("TOKEN_REFRESH_WINDOW", "5m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("DEV_SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("ACCESS_TOKEN_DURATION", "24h")
	v.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	for _, key := range envOnlyKeys {
		if err = v.BindEnv(key); err != nil {
			return
		}
	}

	// Prefer environment variables over config file
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err = v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return config, fmt.Errorf("failed to read config file: %w", err)
			}
			err = nil
		}
	}

	// Unmarshal config into struct
	err = v.UnmarshalExact(&config)
	if err != nil {
		return
	}

	// Validate required configuration
	err = validateConfig(config)
	return
}

func validateConfig(config Config) error {
	if config.WSBaseURL == "" {
		return fmt.Errorf("WS_BASE_URL is required")
	}
	if config.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if config.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative")
	}
	if config.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive")
	}
	if config.ReconnectMaxDelay < config.ReconnectBaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must be at least RECONNECT_BASE_DELAY")
	}
	if config.PingInterval < 0 {
		return fmt.Errorf("PING_INTERVAL must not be negative")
	}

	return nil
}

// ValidateDevServer checks the keys only the dev server needs.
func (config Config) ValidateDevServer() error {
	if len(config.TokenSecretKey) < 32 {
		return fmt.Errorf("TOKEN_SECRET_KEY must be at least 32 characters")
	}
	if config.AccessTokenDuration <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_DURATION must be positive")
	}
	return nil
}
