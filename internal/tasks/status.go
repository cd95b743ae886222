package tasks

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/models"
	"kite-webtrader/internal/store"
)

// TaskInspector reads task state from the queue backend. *asynq.Inspector
// satisfies this.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// StatusService reconciles queue state with the persisted order record.
type StatusService struct {
	inspector TaskInspector
	orders    store.OrderStore
}

// NewStatusService creates a status service.
func NewStatusService(inspector TaskInspector, orders store.OrderStore) *StatusService {
	return &StatusService{inspector: inspector, orders: orders}
}

// Status reports whether the job identified by taskID has finished, whether
// it succeeded, and its value.
//
// A finished job reports its own result (or last error), even when it
// differs from the persisted order's status. An unfinished or queue-unknown
// job falls back to the status field of the order carrying the task id.
// When neither the queue nor the order store knows the id, a typed
// apperrors.ErrTaskNotFound is returned.
func (s *StatusService) Status(ctx context.Context, taskID string) (*models.JobStatus, error) {
	info, err := s.inspector.GetTaskInfo(QueueTrades, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return s.fallback(ctx, taskID)
		}
		return nil, apperrors.NewTaskError(taskID, "status", err)
	}

	switch info.State {
	case asynq.TaskStateCompleted:
		ok := true
		return &models.JobStatus{
			Ready:      true,
			Successful: &ok,
			Value:      decodeResult(info.Result),
		}, nil
	case asynq.TaskStateArchived:
		notOK := false
		return &models.JobStatus{
			Ready:      true,
			Successful: &notOK,
			Value:      info.LastErr,
		}, nil
	default:
		return s.fallback(ctx, taskID)
	}
}

// fallback reads the not-yet-finished job's status from the persisted order.
func (s *StatusService) fallback(ctx context.Context, taskID string) (*models.JobStatus, error) {
	order, err := s.orders.ByTaskID(ctx, taskID)
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			return nil, apperrors.NewTaskError(taskID, "status", apperrors.ErrTaskNotFound)
		}
		return nil, err
	}
	return &models.JobStatus{
		Ready:      false,
		Successful: nil,
		Value:      order.Status,
	}, nil
}

// decodeResult returns the task's result payload as structured data when it
// is JSON, or the raw string otherwise.
func decodeResult(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
