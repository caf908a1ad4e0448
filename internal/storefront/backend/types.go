package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Endpoint names used for logging and metrics labels.
const (
	EndpointCatalogList     = "catalog.list"
	EndpointCatalogCreate   = "catalog.create"
	EndpointLogin           = "user.login"
	EndpointRegister        = "user.register"
	EndpointProfile         = "user.profile"
	EndpointMyOrders        = "orders.mine"
	EndpointUsersWithOrders = "orders.all"
	EndpointPayment         = "payment.initiate"
)

// DefaultErrorMessage is shown when the backend gives no usable message.
const DefaultErrorMessage = "An error occurred"

// Service exposes the remote food backend operations used by the storefront pages.
type Service interface {
	ListCatalog(ctx context.Context) ([]FoodItem, error)
	CreateCatalogItem(ctx context.Context, token string, item NewCatalogItem) error
	Login(ctx context.Context, phone, password string) (string, error)
	Register(ctx context.Context, reg Registration) error
	Profile(ctx context.Context, token string) (*Profile, error)
	MyOrders(ctx context.Context, token string) ([]Order, error)
	UsersWithOrders(ctx context.Context, token string) ([]UserOrders, error)
	InitiatePayment(ctx context.Context, token string, req PaymentRequest) (string, error)
}

// Amount is a monetary value the backend may encode as a number or a numeric string.
type Amount float64

// UnmarshalJSON accepts both 120 and "120".
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("backend: invalid amount %q: %w", raw, err)
	}
	*a = Amount(v)
	return nil
}

// Float64 returns the amount as a float.
func (a Amount) Float64() float64 {
	return float64(a)
}

// Text is a string field the backend may encode as a JSON number (phone numbers).
type Text string

// UnmarshalJSON accepts strings and numbers.
func (t *Text) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backend: invalid text value: %w", err)
	}
	*t = Text(n.String())
	return nil
}

// FoodItem is one catalog entry.
type FoodItem struct {
	ID     string `json:"_id"`
	Title  string `json:"title"`
	Price  Amount `json:"price"`
	PicURL string `json:"pic_url"`
}

// Order is a purchased item as returned by the order endpoints.
type Order struct {
	ID     string `json:"_id"`
	Title  string `json:"title"`
	Price  Amount `json:"price"`
	PicURL string `json:"pic_url"`
	Phone  Text   `json:"phone"`
}

// Profile is the caller's account record.
type Profile struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Phone    Text    `json:"phone_number"`
	Address  string  `json:"address"`
	ImageURL string  `json:"imageURL"`
	Orders   []Order `json:"orders"`
}

// MemberSince derives the account creation time from the leading timestamp of the record id.
func (p *Profile) MemberSince() (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	return objectIDTime(p.ID)
}

// RecentOrders returns at most n orders in backend order.
func (p *Profile) RecentOrders(n int) []Order {
	if p == nil || n <= 0 {
		return nil
	}
	if len(p.Orders) <= n {
		return p.Orders
	}
	return p.Orders[:n]
}

// UserOrders is one account and its orders in the administrator listing.
type UserOrders struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Phone    Text    `json:"phone_number"`
	Address  string  `json:"address"`
	ImageURL string  `json:"imageURL"`
	Orders   []Order `json:"orders"`
}

// Upload is a file forwarded to the backend in a multipart body.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// NewCatalogItem is the administrator form for adding a dish.
type NewCatalogItem struct {
	Title string
	Price string
	Image Upload
}

// Registration is the sign-up form.
type Registration struct {
	FullName string
	Phone    string
	Password string
	Address  string
	Avatar   Upload
}

// PaymentRequest starts a hosted payment for one catalog item.
type PaymentRequest struct {
	Name    string
	Amount  float64
	OrderID string
}

// Error is a failed backend call.
type Error struct {
	Op      string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultErrorMessage
	}
	if e.Status > 0 {
		return fmt.Sprintf("backend: %s (%d): %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("backend: %s: %s", e.Op, msg)
}

// IsUnauthorized reports whether err carries an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Status == 401
}

// UserMessage returns the text to show the user for err.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) && strings.TrimSpace(be.Message) != "" {
		return be.Message
	}
	return DefaultErrorMessage
}

func objectIDTime(id string) (time.Time, bool) {
	id = strings.TrimSpace(id)
	if len(id) < 8 {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(id[:8], 16, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
