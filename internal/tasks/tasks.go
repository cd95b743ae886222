// Package tasks dispatches trade orders to the asynchronous worker and
// reconciles job state for status queries.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/models"
)

const (
	// TypeExecuteTrade is the task type for trade execution jobs.
	TypeExecuteTrade = "trade:execute"

	// QueueTrades is the queue trade jobs are enqueued on.
	QueueTrades = "trades"

	// resultRetention keeps finished tasks queryable for status reads.
	resultRetention = 24 * time.Hour
)

// executePayload is the wire payload of a trade execution task.
type executePayload struct {
	OrderID    string  `json:"order_id"`
	Instrument string  `json:"instrument"`
	Lots       int     `json:"lots"`
	Stoploss   float64 `json:"stoploss"`
	Product    string  `json:"product"`
	Expiry     string  `json:"expiry"`
}

// executeResult is the result payload written by the worker on success.
type executeResult struct {
	OrderID         string `json:"order_id"`
	BrokerOrderID   string `json:"broker_order_id"`
	StoplossOrderID string `json:"stoploss_order_id,omitempty"`
	Status          string `json:"status"`
}

// Dispatcher enqueues a persisted order for asynchronous execution and
// returns the job's opaque identifier.
type Dispatcher interface {
	Dispatch(ctx context.Context, order *models.Order) (string, error)
}

// AsynqDispatcher implements Dispatcher on an asynq client.
type AsynqDispatcher struct {
	client *asynq.Client
}

// NewDispatcher creates a dispatcher backed by the given Redis connection.
func NewDispatcher(redisOpt asynq.RedisClientOpt) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynq.NewClient(redisOpt)}
}

// Dispatch enqueues the order. Jobs are not retried: a failed execution is
// archived and surfaces through the status endpoint, never re-run.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, order *models.Order) (string, error) {
	payload, err := json.Marshal(executePayload{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Lots:       order.Lots,
		Stoploss:   order.Stoploss,
		Product:    string(order.Product),
		Expiry:     order.Expiry.Format("2006-01-02"),
	})
	if err != nil {
		return "", apperrors.Wrap(err, "encoding task payload")
	}

	info, err := d.client.EnqueueContext(ctx,
		asynq.NewTask(TypeExecuteTrade, payload),
		asynq.Queue(QueueTrades),
		asynq.MaxRetry(0),
		asynq.Retention(resultRetention),
	)
	if err != nil {
		return "", apperrors.NewTaskError("", "dispatch", err)
	}
	return info.ID, nil
}

// Close releases the underlying client connection.
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

var _ Dispatcher = (*AsynqDispatcher)(nil)
