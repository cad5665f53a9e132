package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer publishes order events relayed from the outbox. Messages are keyed by
// order id, so the hash balancer keeps one order's events in one partition.
type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}
