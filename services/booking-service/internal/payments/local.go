package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalGateway is the dev-mode provider used when STRIPE_SECRET_KEY is not
// set. Orders settle on their own after a short delay, which exercises the
// pending -> succeeded verification path end to end without Stripe.
type LocalGateway struct {
	settleAfter time.Duration

	mu     sync.Mutex
	orders map[string]time.Time
}

func NewLocalGateway(settleAfter time.Duration) *LocalGateway {
	if settleAfter <= 0 {
		settleAfter = 1500 * time.Millisecond
	}
	return &LocalGateway{
		settleAfter: settleAfter,
		orders:      map[string]time.Time{},
	}
}

func (g *LocalGateway) CreateIntent(_ context.Context, appointmentID string, _ int64, _ string) (Intent, error) {
	orderID := "local_" + uuid.NewString()
	g.mu.Lock()
	g.orders[orderID] = time.Now().Add(g.settleAfter)
	g.mu.Unlock()
	return Intent{
		SessionToken: "local_tok_" + appointmentID,
		OrderID:      orderID,
	}, nil
}

func (g *LocalGateway) VerifyIntent(_ context.Context, orderID string) (Status, error) {
	g.mu.Lock()
	settleAt, ok := g.orders[orderID]
	g.mu.Unlock()
	if !ok {
		return StatusFailed, nil
	}
	if time.Now().Before(settleAt) {
		return StatusPending, nil
	}
	return StatusSucceeded, nil
}
