package payments

import "context"

// Status is the gateway-side settlement state of an order.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Intent is the handle returned by the gateway for one checkout.
// SessionToken goes back to the client to drive the provider's checkout UI;
// OrderID is what we verify settlement against later.
type Intent struct {
	SessionToken string
	OrderID      string
}

// Gateway is the opaque payment provider boundary. Implementations must be
// safe for concurrent use; callers treat any transport error as a failed
// verification rather than assuming success.
type Gateway interface {
	CreateIntent(ctx context.Context, appointmentID string, amountCents int64, currency string) (Intent, error)
	VerifyIntent(ctx context.Context, orderID string) (Status, error)
}
