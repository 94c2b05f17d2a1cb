// Package kafka publishes each captured buffer as one message on a topic.
package kafka

import (
	"errors"
	"fmt"

	"tsprobe/sink"

	"github.com/IBM/sarama"
)

type Config struct {
	Brokers []string `koanf:"brokers" yaml:"brokers"`
	Topic   string   `koanf:"topic" yaml:"topic"`
	// Key pins all messages to one partition, keeping them in order.
	Key     string `koanf:"key" yaml:"key,omitempty"`
	Acks    int16  `koanf:"required_acks" yaml:"required_acks"` // 0,1,-1
	Version string `koanf:"version" yaml:"version"`
}

type dialFunc func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error)

type driver struct {
	cfg  Config
	dial dialFunc
	p    sarama.SyncProducer
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	d.cfg = cfg

	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true

	dial := d.dial
	if dial == nil {
		dial = sarama.NewSyncProducer
	}
	if d.p, err = dial(cfg.Brokers, sc); err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	return nil
}

// Write blocks until the broker acknowledges the message. The payload is
// copied because the caller recycles p.
func (d *driver) Write(p []byte) (int, error) {
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Value: sarama.ByteEncoder(append([]byte(nil), p...)),
	}
	if d.cfg.Key != "" {
		msg.Key = sarama.StringEncoder(d.cfg.Key)
	}
	if _, _, err := d.p.SendMessage(msg); err != nil {
		return 0, fmt.Errorf("kafka-sink: %w", err)
	}
	return len(p), nil
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	err := d.p.Close()
	d.p = nil
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
