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

// GetCartByUser retrieves the cart of a user with items in insertion order
func (s *Store) GetCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		s.db.Rebind("SELECT id, user_id, updated_at FROM carts WHERE user_id = ?"), userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart.Items = []models.CartItem{}
	err = s.db.SelectContext(ctx, &cart.Items,
		s.db.Rebind("SELECT product_id, quantity FROM cart_items WHERE cart_id = ? ORDER BY position"),
		cart.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	return &cart, nil
}

// SaveCart persists the cart and replaces its items. A cart without an id
// is created.
func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = time.Now().UTC()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if cart.ID == uuid.Nil {
			cart.ID = uuid.New()
			_, err := tx.ExecContext(ctx,
				tx.Rebind("INSERT INTO carts (id, user_id, updated_at) VALUES (?, ?, ?)"),
				cart.ID.String(), cart.UserID.String(), cart.UpdatedAt)
			if isUniqueViolation(err) {
				cart.ID = uuid.Nil
				return ErrDuplicate
			}
			if err != nil {
				cart.ID = uuid.Nil
				return fmt.Errorf("failed to create cart: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				tx.Rebind("UPDATE carts SET updated_at = ? WHERE id = ?"), cart.UpdatedAt, cart.ID.String())
			if err != nil {
				return fmt.Errorf("failed to update cart: %w", err)
			}
			if err := expectRow(res); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			tx.Rebind("DELETE FROM cart_items WHERE cart_id = ?"), cart.ID.String()); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}
		for i, item := range cart.Items {
			_, err := tx.ExecContext(ctx,
				tx.Rebind("INSERT INTO cart_items (cart_id, product_id, quantity, position) VALUES (?, ?, ?, ?)"),
				cart.ID.String(), item.ProductID.String(), item.Quantity, i)
			if err != nil {
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}
		return nil
	})
}

// DeleteCart removes the cart of a user. Deleting an absent cart is not an error.
func (s *Store) DeleteCart(ctx context.Context, userID uuid.UUID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return deleteCartTx(ctx, tx, userID)
	})
}

// ListCartOwnersWithProduct returns the users whose cart holds productID
func (s *Store) ListCartOwnersWithProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	owners := []uuid.UUID{}
	err := s.db.SelectContext(ctx, &owners, s.db.Rebind(`
		SELECT DISTINCT carts.user_id FROM carts
		JOIN cart_items ON cart_items.cart_id = carts.id
		WHERE cart_items.product_id = ?
		ORDER BY carts.user_id`), productID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list cart owners: %w", err)
	}
	return owners, nil
}

func deleteCartTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)`), userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM carts WHERE user_id = ?"), userID.String()); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
