package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Pending    PendingConfig    `mapstructure:"pending"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AssistantConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type PendingConfig struct {
	Type  string        `mapstructure:"type"`
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StreamConfig struct {
	// EditThreshold is the number of accumulated characters between
	// partial message edits while streaming.
	EditThreshold int `mapstructure:"edit_threshold"`
	HistoryLimit  int `mapstructure:"history_limit"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.BindEnv("bot.token", "BOT_TOKEN", "TELEGRAM_TOKEN")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("storage.path", "DATABASE_PATH")
	viper.BindEnv("pending.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("pending.redis.db", "REDIS_DB")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Redis address comes as separate host/port env vars in container setups
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Pending.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("bot.update_timeout", 60)
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.request_timeout", 120*time.Second)
	viper.SetDefault("assistant.request_timeout", 60*time.Second)
	viper.SetDefault("storage.path", "bot.db")
	viper.SetDefault("pending.type", "memory")
	viper.SetDefault("pending.ttl", time.Hour)
	viper.SetDefault("stream.edit_threshold", 50)
	viper.SetDefault("stream.history_limit", 10)
	viper.SetDefault("cache.ttl", 30*time.Minute)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en", "ru"})
	viper.SetDefault("i18n.directory", "configs/i18n")
	viper.SetDefault("monitoring.metrics.path", "/metrics")
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai base url is required")
	}
	if !strings.HasPrefix(cfg.OpenAI.BaseURL, "http://") && !strings.HasPrefix(cfg.OpenAI.BaseURL, "https://") {
		return fmt.Errorf("openai base url must be http or https: %s", cfg.OpenAI.BaseURL)
	}
	if cfg.Stream.EditThreshold <= 0 {
		return fmt.Errorf("stream edit threshold must be positive")
	}
	if cfg.Stream.HistoryLimit <= 0 {
		return fmt.Errorf("stream history limit must be positive")
	}
	switch cfg.Pending.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported pending store type: %s", cfg.Pending.Type)
	}
	return nil
}
