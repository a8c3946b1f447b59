package slotstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"

	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

var slotColumns = []string{"id", "nutritionist_id", "day", "start_time", "end_time", "status", "created_at"}

func beginTx(t *testing.T) (pgxmock.PgxPoolIface, context.Context) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	mock.ExpectBegin()
	return mock, context.Background()
}

func TestReserveFlipsOpenSlot(t *testing.T) {
	mock, ctx := beginTx(t)
	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE slots").
		WithArgs("slot-1").
		WillReturnRows(pgxmock.NewRows(slotColumns).
			AddRow("slot-1", "nut-1", now, now, now.Add(time.Hour), model.SlotBooked, now))

	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	slot, err := Reserve(ctx, tx, "slot-1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if slot.Status != model.SlotBooked {
		t.Fatalf("status = %q, want booked", slot.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// The UPDATE matches only rows still open, so of any number of concurrent
// reservers exactly one flips the row. The rest scan zero rows and must
// surface the conflict, not a raw driver error.
func TestReserveLoserGetsSlotUnavailable(t *testing.T) {
	mock, ctx := beginTx(t)
	mock.ExpectQuery("UPDATE slots").
		WithArgs("slot-1").
		WillReturnRows(pgxmock.NewRows(slotColumns))

	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := Reserve(ctx, tx, "slot-1"); !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("Reserve err = %v, want ErrSlotUnavailable", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	mock, ctx := beginTx(t)
	mock.ExpectExec("UPDATE slots").
		WithArgs("slot-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := Release(ctx, tx, "slot-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
