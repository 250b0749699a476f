package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers in major units.
	decimal.MarshalJSONWithoutQuotes = true
}

// User roles
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
)

// User represents a registered account
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the authenticated caller attached to a request
type Identity struct {
	UserID uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

// DisplayName is the name captured on reviews.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	default:
		return "Anonymous"
	}
}

// IsSeller reports whether the identity may manage the catalog.
func (i Identity) IsSeller() bool {
	return i.Role == RoleSeller
}

// Product represents a product in the catalog. InStock, Rating and
// ReviewCount are derived by Refresh and never persisted.
type Product struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	Name          string              `db:"name" json:"name"`
	Description   string              `db:"description" json:"description"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	OriginalPrice decimal.NullDecimal `db:"original_price" json:"originalPrice"`
	Discount      int                 `db:"discount" json:"discount"`
	Image         string              `db:"image" json:"image"`
	Category      string              `db:"category" json:"category"`
	Brand         string              `db:"brand" json:"brand"`
	Stock         int                 `db:"stock" json:"stock"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updatedAt"`

	InStock     bool     `db:"-" json:"inStock"`
	Rating      float64  `db:"-" json:"rating"`
	ReviewCount int      `db:"-" json:"reviewCount"`
	Reviews     []Review `db:"-" json:"reviews"`
}

// Refresh recomputes the derived fields from stock and reviews.
func (p *Product) Refresh() {
	if p.Reviews == nil {
		p.Reviews = []Review{}
	}
	p.InStock = p.Stock > 0
	p.ReviewCount = len(p.Reviews)
	p.Rating = AverageRating(p.Reviews)
}

// Review is a customer review embedded in a product
type Review struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProductID uuid.UUID `db:"product_id" json:"productId"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	UserName  string    `db:"user_name" json:"userName"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Review rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// AverageRating returns the arithmetic mean of review ratings, 0 for none.
// Ratings outside [MinRating, MaxRating] count as 0.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		if r.Rating >= MinRating && r.Rating <= MaxRating {
			total += r.Rating
		}
	}
	return float64(total) / float64(len(reviews))
}

// ProductFilter narrows catalog listings
type ProductFilter struct {
	Search   string
	Category string
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
}

// Matches applies the filter to a single product.
func (f ProductFilter) Matches(p *Product) bool {
	if f.Category != "" && !equalFold(p.Category, f.Category) {
		return false
	}
	if f.MinPrice.Valid && p.Price.LessThan(f.MinPrice.Decimal) {
		return false
	}
	if f.MaxPrice.Valid && p.Price.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	if f.Search != "" {
		return containsFold(p.Name, f.Search) ||
			containsFold(p.Description, f.Search) ||
			containsFold(p.Brand, f.Search)
	}
	return true
}

// Cart is the single cart owned by a user
type Cart struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	Items     []CartItem `db:"-" json:"items"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// CartItem is a product reference with a quantity
type CartItem struct {
	ProductID uuid.UUID `db:"product_id" json:"productId"`
	Quantity  int       `db:"quantity" json:"quantity"`
}

// IndexOf returns the position of productID in the cart, or -1.
func (c *Cart) IndexOf(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Remove drops productID from the cart and reports whether it was present.
func (c *Cart) Remove(productID uuid.UUID) bool {
	idx := c.IndexOf(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// CartLine is a cart item joined with live product data
type CartLine struct {
	Product      Product         `json:"product"`
	Quantity     int             `json:"quantity"`
	IsOutOfStock bool            `json:"isOutOfStock"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// CartView is the populated cart returned to clients. Totals are derived.
type CartView struct {
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ItemCount  int             `json:"itemCount"`
}

// Address is a free-form shipping address
type Address struct {
	FullName   string `json:"fullName,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Value stores the address as JSON text
func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads an address stored as JSON text
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), a)
	case []byte:
		return json.Unmarshal(v, a)
	default:
		return fmt.Errorf("unsupported address type %T", src)
	}
}

// Order is an immutable snapshot of a cart
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"userId"`
	Lines           []OrderLine     `db:"-" json:"items"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"totalAmount"`
	ShippingAddress Address         `db:"shipping_address" json:"shippingAddress"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// OrderLine captures the unit price at order time
type OrderLine struct {
	OrderID   uuid.UUID       `db:"order_id" json:"-"`
	Position  int             `db:"position" json:"-"`
	ProductID uuid.UUID       `db:"product_id" json:"productId"`
	Name      string          `db:"name" json:"name"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// Subtotal is price × quantity
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderTotal sums line subtotals
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
