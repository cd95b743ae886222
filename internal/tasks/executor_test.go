package tasks

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/models"
	"kite-webtrader/internal/session"
)

func executeTask(t *testing.T, orderID string, stoploss float64) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(executePayload{
		OrderID:    orderID,
		Instrument: "NIFTY24JUL25000CE",
		Lots:       2,
		Stoploss:   stoploss,
		Product:    string(models.ProductMIS),
		Expiry:     "2024-07-25",
	})
	require.NoError(t, err)
	return asynq.NewTask(TypeExecuteTrade, payload)
}

func TestHandleExecuteTradePlacesOrders(t *testing.T) {
	orders := newOrderStore(t)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, tokens.Save("sess-token"))
	paper := broker.NewPaperBroker(nil)
	executor := NewExecutor(orders, tokens, broker.PaperFactory{Broker: paper}, zerolog.Nop())

	orderID := insertWithTask(t, orders, "task-1", models.StatusPending)

	err := executor.HandleExecuteTrade(context.Background(), executeTask(t, orderID, 150.5))
	require.NoError(t, err)

	require.Len(t, paper.Placed, 2, "entry plus stop-loss leg")
	entry, sl := paper.Placed[0], paper.Placed[1]
	assert.Equal(t, broker.SideBuy, entry.Side)
	assert.Equal(t, "NFO", entry.Exchange)
	assert.Equal(t, orderID, entry.Tag)
	assert.Equal(t, broker.SideSell, sl.Side)
	assert.Equal(t, 150.5, sl.TriggerPrice)

	order, err := orders.ByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, order.Status)
}

func TestHandleExecuteTradeNoStoploss(t *testing.T) {
	orders := newOrderStore(t)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, tokens.Save("sess-token"))
	paper := broker.NewPaperBroker(nil)
	executor := NewExecutor(orders, tokens, broker.PaperFactory{Broker: paper}, zerolog.Nop())

	orderID := insertWithTask(t, orders, "task-1", models.StatusPending)

	err := executor.HandleExecuteTrade(context.Background(), executeTask(t, orderID, 0))
	require.NoError(t, err)
	require.Len(t, paper.Placed, 1, "no stop-loss leg when stoploss is zero")
}

func TestHandleExecuteTradeBrokerRejection(t *testing.T) {
	orders := newOrderStore(t)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, tokens.Save("sess-token"))
	paper := broker.NewPaperBroker(nil)
	paper.FailOrders = true
	executor := NewExecutor(orders, tokens, broker.PaperFactory{Broker: paper}, zerolog.Nop())

	orderID := insertWithTask(t, orders, "task-1", models.StatusPending)

	err := executor.HandleExecuteTrade(context.Background(), executeTask(t, orderID, 0))
	require.Error(t, err)

	order, getErr := orders.ByID(context.Background(), orderID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusRejected, order.Status)
}

func TestHandleExecuteTradeMissingToken(t *testing.T) {
	orders := newOrderStore(t)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "token.json"))
	paper := broker.NewPaperBroker(nil)
	executor := NewExecutor(orders, tokens, broker.PaperFactory{Broker: paper}, zerolog.Nop())

	orderID := insertWithTask(t, orders, "task-1", models.StatusPending)

	err := executor.HandleExecuteTrade(context.Background(), executeTask(t, orderID, 0))
	require.Error(t, err)
	assert.Empty(t, paper.Placed)

	order, getErr := orders.ByID(context.Background(), orderID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusRejected, order.Status)
}

func TestHandleExecuteTradeBadPayload(t *testing.T) {
	orders := newOrderStore(t)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "token.json"))
	executor := NewExecutor(orders, tokens, broker.PaperFactory{Broker: broker.NewPaperBroker(nil)}, zerolog.Nop())

	err := executor.HandleExecuteTrade(context.Background(), asynq.NewTask(TypeExecuteTrade, []byte("{not json")))
	require.Error(t, err)
}
