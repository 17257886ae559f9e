package mqttsink

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

func TestTopic(t *testing.T) {
	if got := Topic("ais/vessels", 123456789); got != "ais/vessels/123456789" {
		t.Errorf("unexpected topic %q", got)
	}
}

func TestDeliver_NotConnected(t *testing.T) {
	s := New(Config{Enabled: true, Broker: "tcp://127.0.0.1:1", ClientID: "test", TopicPrefix: "ais"}, zap.NewNop())

	err := s.Deliver(telemetry.VesselPosition{MMSI: 1})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"missing broker", Config{Enabled: true, TopicPrefix: "ais"}, true},
		{"missing prefix", Config{Enabled: true, Broker: "tcp://localhost:1883"}, true},
		{"bad qos", Config{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "ais", QoS: 3}, true},
		{"valid", Config{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "ais", QoS: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
