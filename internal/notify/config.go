package notify

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Priorities accepted by ntfy.
var priorities = []string{"min", "low", "default", "high", "urgent"}

// Config selects the ntfy server and topic for feed notifications.
// Tags is a comma separated list of emoji short codes added to every
// message. Token is only needed for protected topics.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Server      string        `mapstructure:"server"`
	Topic       string        `mapstructure:"topic"`
	Priority    string        `mapstructure:"priority"`
	Tags        string        `mapstructure:"tags"`
	Token       string        `mapstructure:"token"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// Validate is a no-op for disabled notifications.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return errors.New("notify.topic is required when notify.enabled=true")
	}
	if !slices.Contains(priorities, c.Priority) {
		return fmt.Errorf("invalid notify.priority %q (valid: %v)", c.Priority, priorities)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("notify.min_interval must be >= 0, got %s", c.MinInterval)
	}
	return nil
}
