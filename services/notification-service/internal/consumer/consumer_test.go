package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/kafkax"
	"github.com/nutricare/nutribook/services/notification-service/internal/inbox"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/segmentio/kafka-go"
)

func newTestConsumer(t *testing.T, handler Handler) (*Consumer, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return &Consumer{
		db:      mock,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbox:   inbox.NewRepository(),
		handler: handler,
	}, mock
}

func TestProcessCommitsRecordAndHandlerTogether(t *testing.T) {
	handled := 0
	c, mock := newTestConsumer(t, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		handled++
		return nil
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "booking.session.started.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	meta := kafkax.EventMeta{EventID: "evt-1", EventType: "booking.session.started.v1"}
	if err := c.process(context.Background(), kafka.Message{}, meta); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handled != 1 {
		t.Fatalf("handler ran %d times, want 1", handled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProcessRollsBackWhenHandlerFails(t *testing.T) {
	boom := errors.New("insert failed")
	c, mock := newTestConsumer(t, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		return boom
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-2", "booking.session.started.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	meta := kafkax.EventMeta{EventID: "evt-2", EventType: "booking.session.started.v1"}
	if err := c.process(context.Background(), kafka.Message{}, meta); !errors.Is(err, boom) {
		t.Fatalf("process err = %v, want handler error", err)
	}
	// The rollback covers the inbox record too: the event id stays free
	// for redelivery instead of being burned by a failed insert.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProcessSkipsDuplicateWithoutHandler(t *testing.T) {
	c, mock := newTestConsumer(t, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		t.Fatal("handler must not run for a duplicate event")
		return nil
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-3", "booking.session.started.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	meta := kafkax.EventMeta{EventID: "evt-3", EventType: "booking.session.started.v1"}
	if err := c.process(context.Background(), kafka.Message{}, meta); !errors.Is(err, errDuplicate) {
		t.Fatalf("process err = %v, want duplicate", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
