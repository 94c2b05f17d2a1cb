package kafka

import (
	"errors"
	"time"
)

type Config struct {
	Brokers   []string `koanf:"brokers" yaml:"brokers"`
	Topic     string   `koanf:"topic" yaml:"topic"`
	Partition int32    `koanf:"partition" yaml:"partition"`
	StartFrom string   `koanf:"start_from" yaml:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version" yaml:"version"`
	TLSEn     bool     `koanf:"tls_enabled" yaml:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user" yaml:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass" yaml:"sasl_pass,omitempty"`

	// PollInterval bounds how long one Read waits for a message.
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	// IdleTimeout ends the stream after this long without a message; 0 never ends.
	IdleTimeout time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.Version == "" {
		c.Version = "2.1.0"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka-source: no brokers")
	}
	if c.Topic == "" {
		return errors.New("kafka-source: no topic")
	}
	if c.StartFrom != "oldest" && c.StartFrom != "newest" {
		return errors.New("kafka-source: start_from must be oldest or newest")
	}
	return nil
}
