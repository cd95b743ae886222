// Package store provides order persistence.
package store

import (
	"context"

	"kite-webtrader/internal/models"
)

// OrderStore defines the interface for order persistence.
//
// Orders are never deleted through this interface; AttachTask sets the task
// id at most once per order.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) (string, error)
	AttachTask(ctx context.Context, id, taskID string) error
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context) ([]models.Order, error)
	ByID(ctx context.Context, id string) (*models.Order, error)
	ByTaskID(ctx context.Context, taskID string) (*models.Order, error)
	Close() error
}
