package broker

import (
	"context"
	"fmt"
	"sync"

	"kite-webtrader/internal/apperrors"
)

// PaperBroker is an in-memory Broker used for paper trading and tests.
// It records placed orders and serves canned prices.
type PaperBroker struct {
	mu          sync.Mutex
	accessToken string
	nextID      int
	Placed      []OrderRequest
	Prices      map[string]float64
	FailOrders  bool // force order placement to fail
}

// NewPaperBroker creates a paper broker with the given canned prices.
func NewPaperBroker(prices map[string]float64) *PaperBroker {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &PaperBroker{Prices: prices}
}

func (p *PaperBroker) LoginURL() string {
	return "https://kite.zerodha.com/connect/login?api_key=paper"
}

func (p *PaperBroker) GenerateSession(ctx context.Context, requestToken string) (string, error) {
	if requestToken == "" {
		return "", apperrors.NewBrokerError("generate_session", "empty request token", nil)
	}
	token := "paper-" + requestToken
	p.SetAccessToken(token)
	return token, nil
}

func (p *PaperBroker) SetAccessToken(token string) {
	p.mu.Lock()
	p.accessToken = token
	p.mu.Unlock()
}

// Authenticated reports whether a session token has been attached.
func (p *PaperBroker) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessToken != ""
}

func (p *PaperBroker) LTP(ctx context.Context, symbols ...string) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		price, ok := p.Prices[sym]
		if !ok {
			return nil, apperrors.NewBrokerError("ltp", fmt.Sprintf("no quote for %s", sym), nil)
		}
		prices[sym] = price
	}
	return prices, nil
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return p.place(req)
}

func (p *PaperBroker) PlaceStopLoss(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.TriggerPrice <= 0 {
		return nil, apperrors.NewValidationError("stoploss", req.TriggerPrice, "trigger price must be positive")
	}
	return p.place(req)
}

func (p *PaperBroker) place(req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	if p.FailOrders {
		return nil, apperrors.NewBrokerError("place_order", "order rejected", nil)
	}
	p.nextID++
	p.Placed = append(p.Placed, req)
	return &OrderResult{OrderID: fmt.Sprintf("PAPER-%06d", p.nextID), Status: "PLACED"}, nil
}

// PaperFactory returns the same paper broker for every session token.
type PaperFactory struct {
	Broker *PaperBroker
}

func (f PaperFactory) New(sessionToken string) Broker {
	if sessionToken != "" {
		f.Broker.SetAccessToken(sessionToken)
	}
	return f.Broker
}

var _ Broker = (*PaperBroker)(nil)
var _ Factory = PaperFactory{}
