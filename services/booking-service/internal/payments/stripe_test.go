package payments

import (
	"context"
	"testing"
)

func TestCheckoutParams(t *testing.T) {
	g := &StripeGateway{successURL: "https://app.example/ok", cancelURL: "https://app.example/no"}
	params := g.checkoutParams(context.Background(), "appt-42", 6000, "")

	if params.IdempotencyKey == nil || *params.IdempotencyKey != "appt:appt-42" {
		t.Fatalf("idempotency key = %v, want appt:appt-42", params.IdempotencyKey)
	}
	if got := params.Metadata["appointment_id"]; got != "appt-42" {
		t.Fatalf("metadata appointment_id = %q", got)
	}
	if len(params.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(params.LineItems))
	}
	price := params.LineItems[0].PriceData
	if *price.UnitAmount != 6000 || *price.Currency != "usd" {
		t.Fatalf("price = %d %s, want 6000 usd default", *price.UnitAmount, *price.Currency)
	}
}
