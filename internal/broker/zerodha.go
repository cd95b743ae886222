package broker

import (
	"context"
	"fmt"
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-webtrader/internal/apperrors"
)

// KiteBroker implements Broker on top of Zerodha Kite Connect.
type KiteBroker struct {
	client    *kiteconnect.Client
	apiSecret string

	mu       sync.RWMutex
	lotSizes map[string]int // NFO tradingsymbol -> lot size
}

// KiteFactory builds Kite clients bound to one API key/secret pair.
type KiteFactory struct {
	APIKey    string
	APISecret string
}

// New returns a Kite client. A non-empty session token is attached before
// first use; otherwise the client is unauthenticated and identity-requiring
// calls fail in the SDK.
func (f KiteFactory) New(sessionToken string) Broker {
	client := kiteconnect.New(f.APIKey)
	if sessionToken != "" {
		client.SetAccessToken(sessionToken)
	}
	return &KiteBroker{
		client:    client,
		apiSecret: f.APISecret,
		lotSizes:  make(map[string]int),
	}
}

// LoginURL returns the Kite Connect login URL for the OAuth redirect flow.
func (k *KiteBroker) LoginURL() string {
	return k.client.GetLoginURL()
}

// GenerateSession exchanges the redirect request token for an access token.
func (k *KiteBroker) GenerateSession(ctx context.Context, requestToken string) (string, error) {
	session, err := k.client.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		return "", apperrors.NewBrokerError("generate_session", "failed to generate session", err)
	}
	k.client.SetAccessToken(session.AccessToken)
	return session.AccessToken, nil
}

// SetAccessToken attaches a stored session token to the client.
func (k *KiteBroker) SetAccessToken(token string) {
	k.client.SetAccessToken(token)
}

// LTP fetches last-traded prices for the given symbols.
func (k *KiteBroker) LTP(ctx context.Context, symbols ...string) (map[string]float64, error) {
	quotes, err := k.client.GetLTP(symbols...)
	if err != nil {
		return nil, apperrors.NewBrokerError("ltp", "failed to get ltp", err)
	}

	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		q, ok := quotes[sym]
		if !ok {
			return nil, apperrors.NewBrokerError("ltp", fmt.Sprintf("no quote for %s", sym), nil)
		}
		prices[sym] = q.LastPrice
	}
	return prices, nil
}

// PlaceOrder places a market entry order for req.Lots lots.
func (k *KiteBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	qty, err := k.quantity(req)
	if err != nil {
		return nil, err
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        req.Exchange,
		Tradingsymbol:   req.Symbol,
		TransactionType: req.Side,
		OrderType:       "MARKET",
		Product:         string(req.Product),
		Quantity:        qty,
		Validity:        ValidityDay,
		Tag:             req.Tag,
	})
	if err != nil {
		return nil, apperrors.NewBrokerError("place_order", "failed to place order", err)
	}

	return &OrderResult{OrderID: resp.OrderID, Status: "PLACED"}, nil
}

// PlaceStopLoss places a SL-M order that exits the position at the trigger.
func (k *KiteBroker) PlaceStopLoss(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.TriggerPrice <= 0 {
		return nil, apperrors.NewValidationError("stoploss", req.TriggerPrice, "trigger price must be positive")
	}
	qty, err := k.quantity(req)
	if err != nil {
		return nil, err
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        req.Exchange,
		Tradingsymbol:   req.Symbol,
		TransactionType: req.Side,
		OrderType:       "SL-M",
		Product:         string(req.Product),
		Quantity:        qty,
		TriggerPrice:    req.TriggerPrice,
		Validity:        ValidityDay,
		Tag:             req.Tag,
	})
	if err != nil {
		return nil, apperrors.NewBrokerError("place_stoploss", "failed to place stop-loss", err)
	}

	return &OrderResult{OrderID: resp.OrderID, Status: "PLACED"}, nil
}

// quantity resolves lots into an absolute quantity using the instrument's
// lot size. Equity instruments trade with a lot size of 1.
func (k *KiteBroker) quantity(req OrderRequest) (int, error) {
	if req.Lots <= 0 {
		return 0, apperrors.NewValidationError("lots", req.Lots, "lots must be positive")
	}
	if req.Exchange != "NFO" {
		return req.Lots, nil
	}

	size, err := k.lotSize(req.Symbol)
	if err != nil {
		return 0, err
	}
	return req.Lots * size, nil
}

func (k *KiteBroker) lotSize(symbol string) (int, error) {
	k.mu.RLock()
	size, ok := k.lotSizes[symbol]
	k.mu.RUnlock()
	if ok {
		return size, nil
	}

	instruments, err := k.client.GetInstrumentsByExchange("NFO")
	if err != nil {
		return 0, apperrors.NewBrokerError("instruments", "failed to fetch NFO instruments", err)
	}

	k.mu.Lock()
	for _, inst := range instruments {
		k.lotSizes[inst.Tradingsymbol] = int(inst.LotSize)
	}
	size, ok = k.lotSizes[symbol]
	k.mu.Unlock()

	if !ok {
		return 0, apperrors.NewBrokerError("instruments", fmt.Sprintf("instrument not found: %s", symbol), nil)
	}
	return size, nil
}

var _ Broker = (*KiteBroker)(nil)
var _ Factory = KiteFactory{}
