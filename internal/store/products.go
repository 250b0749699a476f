package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, description, price, original_price, discount, image,
	category, brand, stock, created_at, updated_at`

// GetProduct retrieves a product with its reviews
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.db.Rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	products := []models.Product{product}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetProductsByIDs retrieves the products that still exist among ids
func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", idStrings(ids))
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// FindProducts lists products matching the filter, newest first
func (s *Store) FindProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(brand) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Category != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Category)))
	}
	if filter.MinPrice.Valid {
		where = append(where, "price >= ?")
		args = append(args, filter.MinPrice.Decimal.String())
	}
	if filter.MaxPrice.Valid {
		where = append(where, "price <= ?")
		args = append(args, filter.MaxPrice.Decimal.String())
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// SampleProducts returns up to limit random products, optionally in one category
func (s *Store) SampleProducts(ctx context.Context, category string, limit int) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	args := []interface{}{}
	if category != "" {
		query += " WHERE LOWER(category) = ?"
		args = append(args, strings.ToLower(strings.TrimSpace(category)))
	}
	query += " ORDER BY RANDOM() LIMIT ?"
	args = append(args, limit)

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to sample products: %w", err)
	}
	if err := s.attachReviews(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListCategories returns the distinct category labels in use
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	categories := []string{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, description, price, original_price, discount, image,
			category, brand, stock, created_at, updated_at)
		VALUES (:id, :name, :description, :price, :original_price, :discount, :image,
			:category, :brand, :stock, :created_at, :updated_at)`, p)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// UpdateProduct overwrites the stored columns of an existing product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products SET name = :name, description = :description, price = :price,
			original_price = :original_price, discount = :discount, image = :image,
			category = :category, brand = :brand, stock = :stock, updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectRow(res)
}

// DeleteProduct removes a product and its reviews
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM products WHERE id = ?"), id.String())
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		if err := expectRow(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM reviews WHERE product_id = ?"), id.String()); err != nil {
			return fmt.Errorf("failed to delete reviews: %w", err)
		}
		return nil
	})
}

// AddReview appends a review; a second review by the same user yields ErrDuplicate
func (s *Store) AddReview(ctx context.Context, r *models.Review) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reviews (id, product_id, user_id, user_name, rating, comment, created_at)
		VALUES (:id, :product_id, :user_id, :user_name, :rating, :comment, :created_at)`, r)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to add review: %w", err)
	}
	return nil
}

// attachReviews loads reviews for products in insertion order and refreshes
// the derived fields.
func (s *Store) attachReviews(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	query, args, err := sqlx.In(`
		SELECT id, product_id, user_id, user_name, rating, comment, created_at
		FROM reviews WHERE product_id IN (?) ORDER BY created_at, id`, idStrings(ids))
	if err != nil {
		return err
	}

	var reviews []models.Review
	if err := s.db.SelectContext(ctx, &reviews, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}

	byProduct := make(map[uuid.UUID][]models.Review, len(products))
	for _, r := range reviews {
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
	}
	for i := range products {
		products[i].Reviews = byProduct[products[i].ID]
		products[i].Refresh()
	}
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
