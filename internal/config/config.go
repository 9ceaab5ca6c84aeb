package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RateLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	DBPath        string        `mapstructure:"db_path"`
	UploadDir     string        `mapstructure:"upload_dir"`
	UploadMaxMB   int64         `mapstructure:"upload_max_mb"`
	FileRetention time.Duration `mapstructure:"file_retention"`

	Workers     int    `mapstructure:"workers"`
	RTCMinPort  int    `mapstructure:"rtc_min_port"`
	RTCMaxPort  int    `mapstructure:"rtc_max_port"`
	AnnouncedIP string `mapstructure:"announced_ip"`

	TextRetentionHours    int `mapstructure:"text_retention_hours"`
	FileMsgRetentionHours int `mapstructure:"file_msg_retention_hours"`
	SessionTTLHours       int `mapstructure:"session_ttl_hours"`
	HistoryLimit          int `mapstructure:"history_limit"`

	SessionLimit RateLimit `mapstructure:"session_limit"`
	UploadLimit  RateLimit `mapstructure:"upload_limit"`
	ChatLimit    RateLimit `mapstructure:"chat_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3030)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("db_path", "natla.db")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("upload_max_mb", 25)
	v.SetDefault("file_retention", "24h")

	v.SetDefault("workers", 2)
	v.SetDefault("rtc_min_port", 40000)
	v.SetDefault("rtc_max_port", 49999)
	v.SetDefault("announced_ip", "127.0.0.1")

	v.SetDefault("text_retention_hours", 720)
	v.SetDefault("file_msg_retention_hours", 24)
	v.SetDefault("session_ttl_hours", 168)
	v.SetDefault("history_limit", 50)

	v.SetDefault("session_limit.limit", 10)
	v.SetDefault("session_limit.window", "1h")
	v.SetDefault("upload_limit.limit", 20)
	v.SetDefault("upload_limit.window", "1h")
	v.SetDefault("chat_limit.limit", 30)
	v.SetDefault("chat_limit.window", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
