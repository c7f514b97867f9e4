package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Debate    DebateConfig    `mapstructure:"debate"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	// Driver 為 postgres 或 memory，memory 僅用於本機開發
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	Port         int    `mapstructure:"port"`
	SSLMode      string `mapstructure:"sslmode"`
	TimeZone     string `mapstructure:"timezone"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DebateConfig struct {
	// TurnsPerParticipant 為每方完成幾次結構化發言後自動進入投票，0 表示不自動切換
	TurnsPerParticipant int `mapstructure:"turns_per_participant"`
	MaxMessageLength    int `mapstructure:"max_message_length"`
}

type SweeperConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	InactivityThreshold time.Duration `mapstructure:"inactivity_threshold"`
	BatchSize           int           `mapstructure:"batch_size"`
}

type WebSocketConfig struct {
	SendBuffer    int     `mapstructure:"send_buffer"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Debounce   time.Duration `mapstructure:"debounce"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "debate")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 20)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("debate.turns_per_participant", 3)
	v.SetDefault("debate.max_message_length", 4000)

	v.SetDefault("sweeper.interval", time.Hour)
	v.SetDefault("sweeper.inactivity_threshold", 30*24*time.Hour)
	v.SetDefault("sweeper.batch_size", 100)

	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_per_second", 2.0)
	v.SetDefault("websocket.burst", 5)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.debounce", 5*time.Second)
	v.SetDefault("notify.timeout", 3*time.Second)
}

// Load 依序讀取預設值、config.yaml、.env 與 DEBATE_ 開頭的環境變數
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./pkg/config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DEBATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 檢查必要設定
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return errors.New("db.driver must be postgres or memory")
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.InactivityThreshold <= 0 {
		return errors.New("sweeper.interval and sweeper.inactivity_threshold must be positive")
	}
	return nil
}
