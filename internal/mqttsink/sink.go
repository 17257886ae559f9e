// Package mqttsink republishes vessel positions to an MQTT broker.
package mqttsink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

var ErrNotConnected = errors.New("mqtt broker not connected")

// Config holds MQTT sink configuration.
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt.enabled=true")
	}
	if c.TopicPrefix == "" {
		return errors.New("mqtt.topic_prefix is required when mqtt.enabled=true")
	}
	if c.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos: %d (must be 0, 1 or 2)", c.QoS)
	}
	return nil
}

// Sink is a telemetry subscriber publishing each record to
// <topic_prefix>/<mmsi>.
type Sink struct {
	client mqtt.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a Sink. Call Connect before registering it.
func New(cfg Config, logger *zap.Logger) *Sink {
	s := &Sink{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect starts connecting in the background. paho keeps retrying until
// the broker is reachable.
func (s *Sink) Connect() {
	s.client.Connect()
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	s.client.Disconnect(250)
}

// ID implements telemetry.Subscriber.
func (s *Sink) ID() string { return "mqtt:" + s.cfg.Broker }

// Deliver implements telemetry.Subscriber. The publish token is not
// awaited; paho completes it asynchronously.
func (s *Sink) Deliver(pos telemetry.VesselPosition) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}

	s.client.Publish(Topic(s.cfg.TopicPrefix, pos.MMSI), s.cfg.QoS, s.cfg.Retained, payload)
	return nil
}

// Topic returns the per-vessel topic.
func Topic(prefix string, mmsi uint32) string {
	return prefix + "/" + strconv.FormatUint(uint64(mmsi), 10)
}
