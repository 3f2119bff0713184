package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Board    BoardConfig    `mapstructure:"board"`
}

type ServerConfig struct {
	Address  string `mapstructure:"address"`
	HTTPPort string `mapstructure:"http_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
	File   string `mapstructure:"file"`
}

// DatabaseConfig: при пустом Driver работаем in-memory (с опциональным JSON-файлом).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql | postgres | sqlite
	DSN    string `mapstructure:"dsn"`
}

type StorageConfig struct {
	DataFile       string `mapstructure:"data_file"`
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type NotifyConfig struct {
	MailboxSize int           `mapstructure:"mailbox_size"`
	KeepAlive   time.Duration `mapstructure:"keep_alive"`
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"` // пусто: MQTT выключен
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	CommandTopic string `mapstructure:"command_topic"`
}

type BoardConfig struct {
	Reasons     []string `mapstructure:"reasons"`
	OtherReason string   `mapstructure:"other_reason"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "5000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("storage.data_file", "")
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.max_upload_bytes", 8<<20)

	v.SetDefault("notify.mailbox_size", 16)
	v.SetDefault("notify.keep_alive", 15*time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "callbell")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.command_topic", "callbell/{device_id}/command")

	v.SetDefault("board.reasons", []string{"마트에서 이동 도움", "상품 선택 도움", "결제 도움", "기타"})
	v.SetDefault("board.other_reason", "기타")
}

// Load читает конфиг: defaults -> файл (если есть) -> .env -> переменные окружения CALLBELL_*.
// path может быть пустым, тогда ищем ./config.{yaml,toml,json} и ./config/config.*.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CALLBELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort == "" {
		return errors.New("server.http_port is required")
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return errors.New("database.dsn is required when database.driver is set")
	}
	if c.Notify.MailboxSize <= 0 {
		return errors.New("notify.mailbox_size must be positive")
	}
	if len(c.Board.Reasons) == 0 {
		return errors.New("board.reasons must not be empty")
	}
	return nil
}
