package kafka

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaSink_SendsOneMessagePerWrite(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	payload := bytes.Repeat([]byte{0x47}, 188)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if !bytes.Equal(val, payload) {
			return fmt.Errorf("payload mismatch: %d bytes", len(val))
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	d := &driver{dial: func([]string, *sarama.Config) (sarama.SyncProducer, error) { return sp, nil }}
	if err := d.Configure(Config{Brokers: []string{"mock:9092"}, Topic: "ts-out", Acks: -1}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	buf := append([]byte(nil), payload...)
	n, err := d.Write(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	n, err = d.Write(buf)
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) || n != 0 {
		t.Fatalf("want broker error and n=0, got n=%d err=%v", n, err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaSink_ConfigureErrors(t *testing.T) {
	if err := (&driver{}).Configure("x"); err == nil {
		t.Fatal("expected type error")
	}
	if err := (&driver{}).Configure(Config{Topic: "t"}); err == nil {
		t.Fatal("expected error for missing brokers")
	}
	if err := (&driver{}).Configure(Config{Brokers: []string{"b"}, Topic: "t", Version: "banana"}); err == nil {
		t.Fatal("expected error for bad version")
	}
}
