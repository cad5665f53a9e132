package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/catalog/application"
	orderdom "github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

const maxAttempts = 3

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type SalesRecorder interface {
	RecordSale(ctx context.Context, lines []application.SaleLine, sign int) error
}

// Consumer keeps item sell counters in step with order events.
type Consumer struct {
	log     *slog.Logger
	reader  Reader
	sales   SalesRecorder
	idem    Deduper
	tracer  trace.Tracer
	backoff time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, sales SalesRecorder, idem Deduper) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, sales, idem)
}

func newConsumer(log *slog.Logger, r Reader, sales SalesRecorder, idem Deduper) *Consumer {
	return &Consumer{
		log:     log,
		reader:  r,
		sales:   sales,
		idem:    idem,
		tracer:  otel.Tracer("catalog-consumer"),
		backoff: 200 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled, which is reported as a nil error. A
// message that still fails after retries stops the consumer without being
// committed, so the group resumes from it on restart.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		var seen bool
		err = c.retry(ctx, "idempotency check", func() error {
			var err error
			seen, err = c.idem.Seen(ctx, key)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("idempotency check %s: %w", key, err)
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		err = c.retry(ctx, "order event handling", func() error { return c.handle(ctx, msg) })
		switch {
		case errors.Is(err, errMalformed):
			c.log.Error("malformed order event skipped", "key", key, "err", err)
		case err != nil:
			if rerr := c.idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
				c.log.Error("release idempotency key failed", "key", key, "err", rerr)
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handle %s: %w", key, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "key", key, "err", err)
		}
	}
}

// retry runs fn up to maxAttempts times with a linear backoff. Malformed
// events are not retried.
func (c *Consumer) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil || errors.Is(err, errMalformed) {
			return err
		}
		c.log.Warn(what+" failed", "attempt", attempt, "err", err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

var errMalformed = errors.New("malformed order event")

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	eventType := headerValue(msg.Headers, outbox.EventTypeHeader)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume"+eventType)
	defer span.End()
	span.SetAttributes(attribute.String("messaging.kafka.key", string(msg.Key)))

	switch eventType {
	case orderdom.EventOrderPlaced:
		var ev orderdom.OrderPlaced
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return errors.Join(errMalformed, err)
		}
		if ev.PriceRequest {
			return nil
		}
		if err := c.sales.RecordSale(msgCtx, saleLines(ev.Lines), 1); err != nil {
			return err
		}
		c.log.Info("sell counters increased", "order_id", ev.OrderID)

	case orderdom.EventOrderStatusChanged:
		var ev orderdom.OrderStatusChanged
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return errors.Join(errMalformed, err)
		}
		if ev.PriceRequest || ev.To != orderdom.StatusCancelled || ev.From == orderdom.StatusCancelled {
			return nil
		}
		if err := c.sales.RecordSale(msgCtx, saleLines(ev.Lines), -1); err != nil {
			return err
		}
		c.log.Info("sell counters reverted", "order_id", ev.OrderID)
	}
	return nil
}

func saleLines(lines []orderdom.EventLine) []application.SaleLine {
	out := make([]application.SaleLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, application.SaleLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
