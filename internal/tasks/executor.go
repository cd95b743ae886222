package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/models"
	"kite-webtrader/internal/session"
	"kite-webtrader/internal/store"
)

// Executor runs trade execution tasks. It builds an authenticated broker
// client from the stored session token, places the entry order (plus a
// stop-loss leg when requested) and writes the terminal status back onto
// the persisted order.
type Executor struct {
	orders  store.OrderStore
	tokens  *session.Store
	factory broker.Factory
	logger  zerolog.Logger
}

// NewExecutor creates a task executor.
func NewExecutor(orders store.OrderStore, tokens *session.Store, factory broker.Factory, logger zerolog.Logger) *Executor {
	return &Executor{
		orders:  orders,
		tokens:  tokens,
		factory: factory,
		logger:  logger,
	}
}

// HandleExecuteTrade processes a trade:execute task. A returned error
// archives the task (no retries), which the status endpoint reports as a
// finished, unsuccessful job.
func (e *Executor) HandleExecuteTrade(ctx context.Context, t *asynq.Task) error {
	var p executePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return apperrors.Wrap(err, "decoding task payload")
	}

	logger := e.logger.With().Str("order_id", p.OrderID).Str("instrument", p.Instrument).Logger()

	token, err := e.tokens.Load()
	if err != nil {
		e.reject(ctx, p.OrderID, logger, "no session token", err)
		return fmt.Errorf("loading session token: %w", err)
	}

	b := e.factory.New(token)

	entry, err := b.PlaceOrder(ctx, broker.OrderRequest{
		Exchange: "NFO",
		Symbol:   p.Instrument,
		Side:     broker.SideBuy,
		Product:  models.ProductType(p.Product),
		Lots:     p.Lots,
		Tag:      p.OrderID,
	})
	if err != nil {
		e.reject(ctx, p.OrderID, logger, "entry order failed", err)
		return fmt.Errorf("placing entry order: %w", err)
	}
	logger.Info().Str("broker_order_id", entry.OrderID).Msg("entry order placed")

	result := executeResult{
		OrderID:       p.OrderID,
		BrokerOrderID: entry.OrderID,
		Status:        models.StatusComplete,
	}

	if p.Stoploss > 0 {
		sl, err := b.PlaceStopLoss(ctx, broker.OrderRequest{
			Exchange:     "NFO",
			Symbol:       p.Instrument,
			Side:         broker.SideSell,
			Product:      models.ProductType(p.Product),
			Lots:         p.Lots,
			TriggerPrice: p.Stoploss,
			Tag:          p.OrderID,
		})
		if err != nil {
			e.reject(ctx, p.OrderID, logger, "stop-loss order failed", err)
			return fmt.Errorf("placing stop-loss order: %w", err)
		}
		result.StoplossOrderID = sl.OrderID
		logger.Info().Str("broker_order_id", sl.OrderID).Msg("stop-loss order placed")
	}

	if err := e.orders.UpdateStatus(ctx, p.OrderID, models.StatusComplete); err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, "encoding task result")
	}
	// The result writer is only attached to tasks delivered by the server.
	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write(payload); err != nil {
			return apperrors.Wrap(err, "writing task result")
		}
	}

	logger.Info().Msg("trade executed")
	return nil
}

func (e *Executor) reject(ctx context.Context, orderID string, logger zerolog.Logger, reason string, cause error) {
	logger.Error().Err(cause).Msg(reason)
	if err := e.orders.UpdateStatus(ctx, orderID, models.StatusRejected); err != nil {
		logger.Error().Err(err).Msg("failed to mark order rejected")
	}
}

// NewServer creates the asynq worker server and its mux with the executor's
// handlers registered.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, executor *Executor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueTrades: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExecuteTrade, executor.HandleExecuteTrade)
	return srv, mux
}
