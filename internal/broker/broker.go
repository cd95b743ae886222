// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"

	"kite-webtrader/internal/models"
)

// Order sides and validity accepted by the broker API.
const (
	SideBuy     = "BUY"
	SideSell    = "SELL"
	ValidityDay = "DAY"
)

// OrderRequest describes a trade to place with the broker. Lots is the
// number of lots; the implementation resolves the instrument's lot size.
type OrderRequest struct {
	Exchange     string
	Symbol       string
	Side         string
	Product      models.ProductType
	Lots         int
	TriggerPrice float64 // stop-loss trigger, used by PlaceStopLoss only
	Tag          string
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	OrderID string
	Status  string
}

// Broker defines the subset of broker operations the portal needs.
//
// A client built without a session token is returned unauthenticated; calls
// that need identity fail with the SDK's unauthenticated error.
type Broker interface {
	// LoginURL returns the broker's redirect login URL.
	LoginURL() string

	// GenerateSession exchanges a one-time request token for an access
	// token and attaches it to the client.
	GenerateSession(ctx context.Context, requestToken string) (string, error)

	// SetAccessToken attaches a previously stored session token.
	SetAccessToken(token string)

	// LTP returns last-traded prices keyed by the requested symbols.
	LTP(ctx context.Context, symbols ...string) (map[string]float64, error)

	// PlaceOrder places a market entry order.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// PlaceStopLoss places a stop-loss market order at req.TriggerPrice.
	PlaceStopLoss(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// Factory builds broker clients, attaching the stored session token when one
// is present.
type Factory interface {
	New(sessionToken string) Broker
}
