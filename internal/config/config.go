package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/ais-bridge/internal/mqttsink"
	"github.com/dgnsrekt/ais-bridge/internal/notify"
	"github.com/dgnsrekt/ais-bridge/internal/recorder"
)

type Config struct {
	MAVLink   MAVLinkConfig   `mapstructure:"mavlink"`
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Recorder  recorder.Config `mapstructure:"recorder"`
	MQTT      mqttsink.Config `mapstructure:"mqtt"`
	Notify    notify.Config   `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type MAVLinkConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

type ActivityConfig struct {
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("mavlink.host", "127.0.0.1")
	v.SetDefault("mavlink.port", 5760)
	v.SetDefault("mavlink.retry_delay", "5s")
	v.SetDefault("mavlink.dial_timeout", "10s")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("activity.stale_after", "5s")
	v.SetDefault("activity.check_interval", "1s")
	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.directory", "ais-logs")
	v.SetDefault("recorder.compress", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "ais-bridge")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "ais/vessels")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "ship")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.min_interval", "1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)

	// Environment variable support
	v.SetEnvPrefix("AISBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Plain names used by existing deployments
	_ = v.BindEnv("mavlink.host", "AISBRIDGE_MAVLINK_HOST", "MAVLINK_HOST")
	_ = v.BindEnv("mavlink.port", "AISBRIDGE_MAVLINK_PORT", "MAVLINK_PORT")
	_ = v.BindEnv("server.port", "AISBRIDGE_SERVER_PORT", "PORT")
	_ = v.BindEnv("notify.token", "AISBRIDGE_NOTIFY_TOKEN", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MAVLink.Host == "" {
		return errors.New("mavlink.host is required")
	}
	if c.MAVLink.Port < 1 || c.MAVLink.Port > 65535 {
		return fmt.Errorf("mavlink.port must be between 1 and 65535, got %d", c.MAVLink.Port)
	}
	if c.MAVLink.RetryDelay <= 0 {
		return fmt.Errorf("mavlink.retry_delay must be > 0, got %s", c.MAVLink.RetryDelay)
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Activity.StaleAfter <= 0 || c.Activity.CheckInterval <= 0 {
		return errors.New("activity.stale_after and activity.check_interval must be > 0")
	}
	if c.Recorder.Enabled && c.Recorder.Directory == "" {
		return errors.New("recorder.directory is required when recorder.enabled=true")
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	return c.Notify.Validate()
}
