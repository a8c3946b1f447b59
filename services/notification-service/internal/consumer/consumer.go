package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/libs/kafkax"
	"github.com/nutricare/nutribook/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler does the per-event work inside the transaction that also records
// the inbox row. If it errors, the whole transaction rolls back and the
// event stays unrecorded for redelivery.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

var errDuplicate = errors.New("duplicate event")

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Consumer reads one topic and runs the handler once per distinct event.
// Inbox dedupe and the handler's writes share a transaction, so a
// redelivered message never produces a second notification and a failed
// one never burns its event id.
type Consumer struct {
	reader  *kafka.Reader
	db      txBeginner
	logger  *slog.Logger
	inbox   *inbox.Repository
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, pool *db.Pool, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		db:      pool,
		logger:  logger,
		inbox:   inboxRepo,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)
		if err := c.process(ctxSpan, msg, meta); err != nil {
			if errors.Is(err, errDuplicate) {
				c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			} else {
				c.logger.Error("event processing failed", "err", err, "event_id", meta.EventID)
				span.RecordError(err)
			}
		}
		span.End()
	}
}

// process records the inbox row and runs the handler in one transaction.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := c.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		return errDuplicate
	}

	if err := c.handler(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
