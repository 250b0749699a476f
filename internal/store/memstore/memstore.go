// Package memstore keeps every aggregate in process memory. It backs the
// memory store driver and the service tests.
package memstore

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]models.User
	products  map[uuid.UUID]models.Product
	reviews   map[uuid.UUID][]models.Review
	carts     map[uuid.UUID]models.Cart // by user id
	orders    map[uuid.UUID]models.Order
	processed map[string]string
}

func New() *Store {
	return &Store{
		users:     make(map[uuid.UUID]models.User),
		products:  make(map[uuid.UUID]models.Product),
		reviews:   make(map[uuid.UUID][]models.Review),
		carts:     make(map[uuid.UUID]models.Cart),
		orders:    make(map[uuid.UUID]models.Order),
		processed: make(map[string]string),
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.hydrate(p)
	return &out, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, s.hydrate(p))
		}
	}
	return out, nil
}

func (s *Store) FindProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Product{}
	for _, p := range s.products {
		if filter.Matches(&p) {
			out = append(out, s.hydrate(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SampleProducts(ctx context.Context, category string, limit int) ([]models.Product, error) {
	matches, err := s.FindProducts(ctx, models.ProductFilter{Category: category})
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	out := []string{}
	for _, p := range s.products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; ok {
		return store.ErrDuplicate
	}
	s.products[p.ID] = stripDerived(*p)
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return store.ErrNotFound
	}
	s.products[p.ID] = stripDerived(*p)
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	delete(s.reviews, id)
	return nil
}

func (s *Store) AddReview(ctx context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reviews[r.ProductID] {
		if existing.UserID == r.UserID {
			return store.ErrDuplicate
		}
	}
	s.reviews[r.ProductID] = append(s.reviews[r.ProductID], *r)
	return nil
}

func (s *Store) GetCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := copyCart(c)
	return &out, nil
}

func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.carts[cart.UserID]
	switch {
	case cart.ID == uuid.Nil && ok:
		return store.ErrDuplicate
	case cart.ID == uuid.Nil:
		cart.ID = uuid.New()
	case !ok || existing.ID != cart.ID:
		return store.ErrNotFound
	}
	cart.UpdatedAt = time.Now().UTC()
	s.carts[cart.UserID] = copyCart(*cart)
	return nil
}

func (s *Store) DeleteCart(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

func (s *Store) ListCartOwnersWithProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := []uuid.UUID{}
	for userID, c := range s.carts {
		if c.IndexOf(productID) >= 0 {
			owners = append(owners, userID)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	return owners, nil
}

func (s *Store) CreateOrderFromCart(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.IdempotencyKey != "" {
		for _, o := range s.orders {
			if o.UserID == order.UserID && o.IdempotencyKey == order.IdempotencyKey {
				return store.ErrDuplicate
			}
		}
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
		order.Lines[i].Position = i
	}
	s.orders[order.ID] = copyOrder(*order)
	delete(s.carts, order.UserID)
	return nil
}

func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			out := copyOrder(o)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = normalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = normalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[eventID] = eventType
	return nil
}

// hydrate must be called with the lock held
func (s *Store) hydrate(p models.Product) models.Product {
	p.Reviews = append([]models.Review(nil), s.reviews[p.ID]...)
	p.Refresh()
	return p
}

func stripDerived(p models.Product) models.Product {
	p.Reviews = nil
	p.InStock = false
	p.Rating = 0
	p.ReviewCount = 0
	return p
}

func copyCart(c models.Cart) models.Cart {
	c.Items = append([]models.CartItem{}, c.Items...)
	return c
}

func copyOrder(o models.Order) models.Order {
	o.Lines = append([]models.OrderLine{}, o.Lines...)
	return o
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
