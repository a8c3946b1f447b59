package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/services/booking-service/internal/payments"
	"github.com/nutricare/nutribook/services/booking-service/internal/storage"
)

// PaymentReconciler sweeps appointments stuck in pending_payment. A patient
// who abandons checkout never calls confirm, so without this sweep the
// nutritionist's window would stay blocked by the partial unique index.
// Orders that settled at the gateway get confirmed; everything else past
// the abandon cutoff gets cancelled.
type PaymentReconciler struct {
	pool         *db.Pool
	repo         *storage.AppointmentRepository
	gateway      payments.Gateway
	logger       *slog.Logger
	abandonAfter time.Duration
	batchSize    int
	advisoryKey  int64
}

type Config struct {
	AbandonAfter    time.Duration
	Interval        time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

func NewPaymentReconciler(pool *db.Pool, repo *storage.AppointmentRepository, gateway payments.Gateway, logger *slog.Logger, cfg Config) *PaymentReconciler {
	abandon := cfg.AbandonAfter
	if abandon <= 0 {
		abandon = 15 * time.Minute
	}
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		// Stable-ish default; override via env if you run multiple booking instances.
		lockKey = 7305001
	}
	return &PaymentReconciler{
		pool:         pool,
		repo:         repo,
		gateway:      gateway,
		logger:       logger,
		abandonAfter: abandon,
		batchSize:    bs,
		advisoryKey:  lockKey,
	}
}

func (r *PaymentReconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	// Best-effort leader election for multi-instance deployments.
	// Only the instance holding the advisory lock will reconcile.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("payment reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !locked {
			r.logger.Info("payment reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			time.Sleep(30 * time.Second)
			continue
		}
		r.logger.Info("payment reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *PaymentReconciler) reconcileOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.abandonAfter)
	pending, err := r.repo.StalePendingPayment(ctx, cutoff, r.batchSize)
	if err != nil {
		r.logger.Error("payment reconcile: failed to list pending appointments", "err", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}

		status, err := r.gateway.VerifyIntent(ctx, p.OrderID)
		if err != nil {
			// Transient gateway trouble; leave the row for the next tick.
			r.logger.Warn("payment reconcile: verify failed", "err", err, "appointment_id", p.AppointmentID, "order_id", p.OrderID)
			continue
		}

		succeeded := status == payments.StatusSucceeded
		if _, err := r.repo.ApplyPaymentResult(ctx, p.AppointmentID, succeeded); err != nil {
			r.logger.Warn("payment reconcile: apply failed", "err", err, "appointment_id", p.AppointmentID)
			continue
		}
		r.logger.Info("payment reconcile: resolved stale appointment",
			"appointment_id", p.AppointmentID,
			"order_id", p.OrderID,
			"settled", succeeded)
	}
}
