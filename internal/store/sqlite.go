package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/models"
)

// SQLiteStore implements OrderStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based order store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		instrument TEXT NOT NULL,
		lots INTEGER NOT NULL,
		stoploss REAL NOT NULL,
		product TEXT NOT NULL,
		expiry DATETIME NOT NULL,
		date DATETIME NOT NULL,
		task_id TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_task_id ON orders(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// newOrderID returns a store-assigned unique order id.
func newOrderID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating order id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Insert persists a new order and returns its store-assigned id. The order's
// status defaults to PENDING when unset.
func (s *SQLiteStore) Insert(ctx context.Context, order *models.Order) (string, error) {
	id, err := newOrderID()
	if err != nil {
		return "", err
	}
	status := order.Status
	if status == "" {
		status = models.StatusPending
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, instrument, lots, stoploss, product, expiry, date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, order.Instrument, order.Lots, order.Stoploss, string(order.Product),
		order.Expiry, order.Date, status,
	)
	if err != nil {
		return "", apperrors.Wrap(err, "inserting order")
	}

	order.ID = id
	order.Status = status
	return id, nil
}

// AttachTask records the dispatched job id on the order. The update only
// applies while task_id is still unset, so the id is attached at most once.
func (s *SQLiteStore) AttachTask(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET task_id = ? WHERE id = ? AND task_id IS NULL`,
		taskID, id,
	)
	if err != nil {
		return apperrors.Wrap(err, "attaching task id")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "attaching task id")
	}
	if n == 0 {
		return apperrors.NewOrderError(id, "attach_task", "order missing or task id already set", nil)
	}
	return nil
}

// UpdateStatus sets the order's status. Called by the worker on completion.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return apperrors.Wrap(err, "updating order status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

// List returns all orders, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument, lots, stoploss, product, expiry, date, task_id, status
		FROM orders ORDER BY date DESC, id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "listing orders")
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// ByID returns the order with the given id.
func (s *SQLiteStore) ByID(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instrument, lots, stoploss, product, expiry, date, task_id, status
		FROM orders WHERE id = ?`, id)
	return scanOrderRow(row)
}

// ByTaskID returns the order carrying the given task id.
func (s *SQLiteStore) ByTaskID(ctx context.Context, taskID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instrument, lots, stoploss, product, expiry, date, task_id, status
		FROM orders WHERE task_id = ?`, taskID)
	return scanOrderRow(row)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(r rowScanner) (*models.Order, error) {
	var (
		order   models.Order
		product string
		taskID  sql.NullString
	)
	err := r.Scan(&order.ID, &order.Instrument, &order.Lots, &order.Stoploss,
		&product, &order.Expiry, &order.Date, &taskID, &order.Status)
	if err != nil {
		return nil, apperrors.Wrap(err, "scanning order")
	}
	order.Product = models.ProductType(product)
	if taskID.Valid {
		order.TaskID = taskID.String
	}
	return &order, nil
}

func scanOrderRow(row *sql.Row) (*models.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}
