// Package kafka reads a transport stream carried as the payloads of one
// Kafka topic partition, in offset order.
package kafka

import (
	"errors"
	"fmt"
	"io"
	"time"

	"tsprobe/internal/logging"
	"tsprobe/source"

	"github.com/IBM/sarama"
)

type dialFunc func(brokers []string, sc *sarama.Config) (sarama.Consumer, error)

type SaramaDriver struct {
	cfg  Config
	dial dialFunc

	consumer sarama.Consumer
	pc       sarama.PartitionConsumer

	pending  []byte // unread tail of the last message
	lastData time.Time
}

func (d *SaramaDriver) Configure(raw any) error {
	config, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: expected Config, got %T", raw)
	}
	applyDefaults(&config)
	if err := config.validate(); err != nil {
		return err
	}
	d.cfg = config

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return fmt.Errorf("kafka-source: %w", err)
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	offset := sarama.OffsetNewest
	if config.StartFrom == "oldest" {
		offset = sarama.OffsetOldest
	}

	dial := d.dial
	if dial == nil {
		dial = sarama.NewConsumer
	}
	if d.consumer, err = dial(config.Brokers, sc); err != nil {
		return fmt.Errorf("kafka-source: %w", err)
	}
	if d.pc, err = d.consumer.ConsumePartition(config.Topic, config.Partition, offset); err != nil {
		_ = d.consumer.Close()
		return fmt.Errorf("kafka-source: consume %s/%d: %w", config.Topic, config.Partition, err)
	}
	d.lastData = time.Now()
	logging.L().Info("kafka-source: consuming", "topic", config.Topic, "partition", config.Partition, "start_from", config.StartFrom)
	return nil
}

// Read hands out message payloads as a byte stream. A message longer than p
// is split across reads; message boundaries are not preserved.
func (d *SaramaDriver) Read(p []byte) (int, error) {
	if len(d.pending) > 0 {
		return d.serve(p), nil
	}

	t := time.NewTimer(d.cfg.PollInterval)
	defer t.Stop()

	select {
	case msg, ok := <-d.pc.Messages():
		if !ok {
			return 0, io.EOF
		}
		if len(msg.Value) == 0 {
			return 0, source.ErrTransient
		}
		d.pending = msg.Value
		d.lastData = time.Now()
		return d.serve(p), nil

	case cerr, ok := <-d.pc.Errors():
		if !ok {
			return 0, io.EOF
		}
		logging.L().Warn("kafka-source: consumer error", "err", cerr)
		return 0, source.ErrTransient

	case <-t.C:
		if d.cfg.IdleTimeout > 0 && time.Since(d.lastData) >= d.cfg.IdleTimeout {
			logging.L().Info("kafka-source: idle timeout, ending stream", "idle", d.cfg.IdleTimeout)
			return 0, io.EOF
		}
		return 0, source.ErrTransient
	}
}

func (d *SaramaDriver) serve(p []byte) int {
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n
}

func (d *SaramaDriver) Close() error {
	var errs []error
	if d.pc != nil {
		errs = append(errs, d.pc.Close())
		d.pc = nil
	}
	if d.consumer != nil {
		errs = append(errs, d.consumer.Close())
		d.consumer = nil
	}
	return errors.Join(errs...)
}

func init() {
	source.Register("kafka", func() source.Adapter { return &SaramaDriver{} })
}
