package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, total_amount, shipping_address,
	COALESCE(idempotency_key, '') AS idempotency_key, created_at`

// CreateOrderFromCart inserts the order with its lines and deletes the
// owner's cart in one transaction. A reused idempotency key yields ErrDuplicate.
func (s *Store) CreateOrderFromCart(ctx context.Context, order *models.Order) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var key interface{}
		if order.IdempotencyKey != "" {
			key = order.IdempotencyKey
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO orders (id, user_id, total_amount, shipping_address, idempotency_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			order.ID.String(), order.UserID.String(), order.TotalAmount.String(),
			order.ShippingAddress, key, order.CreatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			line.OrderID = order.ID
			line.Position = i
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO order_lines (order_id, position, product_id, name, quantity, price)
				VALUES (?, ?, ?, ?, ?, ?)`),
				order.ID.String(), i, line.ProductID.String(), line.Name, line.Quantity, line.Price.String())
			if err != nil {
				return fmt.Errorf("failed to create order line: %w", err)
			}
		}

		return deleteCartTx(ctx, tx, order.UserID)
	})
}

// GetOrderByID retrieves an order with its lines
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []models.Order{order}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key.
// It returns nil, nil when no such order exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE user_id = ? AND idempotency_key = ?"),
		userID.String(), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}

	orders := []models.Order{order}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC"),
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)"), eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO processed_events (event_id, event_type, processed_at)
			VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING`),
		eventID, eventType, time.Now().UTC())
	return err
}

func (s *Store) attachLines(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	query, args, err := sqlx.In(`
		SELECT order_id, position, product_id, name, quantity, price
		FROM order_lines WHERE order_id IN (?) ORDER BY order_id, position`, idStrings(ids))
	if err != nil {
		return err
	}

	var lines []models.OrderLine
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}

	byOrder := make(map[uuid.UUID][]models.OrderLine, len(orders))
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}
	for i := range orders {
		orders[i].Lines = byOrder[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []models.OrderLine{}
		}
	}
	return nil
}
