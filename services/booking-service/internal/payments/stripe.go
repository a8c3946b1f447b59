package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

// StripeGateway funds expert bookings through Stripe Checkout. One checkout
// session gates one appointment; the session id doubles as the order id we
// verify settlement against.
type StripeGateway struct {
	successURL string
	cancelURL  string
}

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	// Stripe uses a process-global API key.
	stripe.Key = key
	return &StripeGateway{
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
	}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, appointmentID string, amountCents int64, currency string) (Intent, error) {
	sess, err := checkoutsession.New(g.checkoutParams(ctx, appointmentID, amountCents, currency))
	if err != nil {
		return Intent{}, fmt.Errorf("create checkout session: %w", err)
	}

	token := sess.ClientSecret
	if token == "" {
		token = sess.URL
	}
	return Intent{SessionToken: token, OrderID: sess.ID}, nil
}

func (g *StripeGateway) checkoutParams(ctx context.Context, appointmentID string, amountCents int64, currency string) *stripe.CheckoutSessionParams {
	if currency == "" {
		currency = "usd"
	}
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(appointmentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Nutrition consultation"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"appointment_id": appointmentID,
		},
	}
	// Safe retries: the same appointment never opens two sessions.
	params.IdempotencyKey = stripe.String("appt:" + appointmentID)
	params.AddExpand("url")
	return params
}

func (g *StripeGateway) VerifyIntent(ctx context.Context, orderID string) (Status, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	sess, err := checkoutsession.Get(orderID, params)
	if err != nil {
		return StatusFailed, fmt.Errorf("fetch checkout session: %w", err)
	}

	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusSucceeded, nil
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return StatusFailed, nil
	default:
		// Settlement can lag checkout completion by a second or two.
		return StatusPending, nil
	}
}
