package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite|postgres
	DSN    string `mapstructure:"dsn"`
}

type DirectoryConfig struct {
	URL       string        `mapstructure:"url"`
	StudentID string        `mapstructure:"student_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type ResolverConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type SubmissionConfig struct {
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	FlushOnStart  bool          `mapstructure:"flush_on_start"`
	FlushInterval time.Duration `mapstructure:"flush_interval"` // 0 disables periodic flush
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Pretty  bool   `mapstructure:"pretty"`
	NoColor bool   `mapstructure:"no_color"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Directory.URL == "" {
		return nil, fmt.Errorf("directory.url is required")
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.address", "127.0.0.1:8470")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "")

	viper.SetDefault("directory.url", "http://localhost:5000")
	viper.SetDefault("directory.student_id", "")
	viper.SetDefault("directory.timeout", "5s")

	viper.SetDefault("resolver.fetch_timeout", "4s")

	viper.SetDefault("submission.retry_delay", "500ms")
	viper.SetDefault("submission.flush_on_start", true)
	viper.SetDefault("submission.flush_interval", "0")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.pretty", false)
	viper.SetDefault("logging.no_color", false)

	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type"})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 300)
}
