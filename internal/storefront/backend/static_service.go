package backend

import (
	"context"
	"io"
	"strings"
	"sync"
)

var (
	_ Service = (*HTTPService)(nil)
	_ Service = (*StaticService)(nil)
)

// Call records one StaticService invocation.
type Call struct {
	Endpoint string
	Token    string
	Item     NewCatalogItem
	Payment  PaymentRequest
	Phone    string
}

// StaticService is an in-memory Service for tests and offline development.
type StaticService struct {
	mu sync.Mutex

	Catalog  []FoodItem
	Accounts map[string]string // phone -> password
	Tokens   map[string]string // phone -> token issued on login
	Account  *Profile
	Orders   []Order
	AllUsers []UserOrders
	PayURL   string

	failures map[string]error
	calls    []Call
}

// NewStaticService constructs a StaticService seeded with catalog.
func NewStaticService(catalog ...FoodItem) *StaticService {
	return &StaticService{
		Catalog:  catalog,
		Accounts: make(map[string]string),
		Tokens:   make(map[string]string),
		failures: make(map[string]error),
	}
}

// Fail makes every subsequent call to endpoint return err.
func (s *StaticService) Fail(endpoint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]error)
	}
	s.failures[endpoint] = err
}

// Calls returns the recorded invocations.
func (s *StaticService) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo counts invocations of endpoint.
func (s *StaticService) CallsTo(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *StaticService) begin(call Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.failures[call.Endpoint]
}

// ListCatalog implements Service.
func (s *StaticService) ListCatalog(ctx context.Context) ([]FoodItem, error) {
	if err := s.begin(Call{Endpoint: EndpointCatalogList}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FoodItem(nil), s.Catalog...), nil
}

// CreateCatalogItem implements Service.
func (s *StaticService) CreateCatalogItem(ctx context.Context, token string, item NewCatalogItem) error {
	if item.Image.Body != nil {
		_, _ = io.Copy(io.Discard, item.Image.Body)
		item.Image.Body = nil
	}
	if err := s.begin(Call{Endpoint: EndpointCatalogCreate, Token: token, Item: item}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var price Amount
	_ = price.UnmarshalJSON([]byte(item.Price))
	s.Catalog = append(s.Catalog, FoodItem{ID: strings.ToLower(item.Title), Title: item.Title, Price: price})
	return nil
}

// Login implements Service.
func (s *StaticService) Login(ctx context.Context, phone, password string) (string, error) {
	if err := s.begin(Call{Endpoint: EndpointLogin, Phone: phone}); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if want, ok := s.Accounts[phone]; !ok || want != password {
		return "", &Error{Op: EndpointLogin, Status: 400, Message: "Invalid phone or password"}
	}
	return s.Tokens[phone], nil
}

// Register implements Service.
func (s *StaticService) Register(ctx context.Context, reg Registration) error {
	if err := s.begin(Call{Endpoint: EndpointRegister, Phone: reg.Phone}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Accounts[reg.Phone]; exists {
		return &Error{Op: EndpointRegister, Status: 409, Message: "User already exists"}
	}
	if s.Accounts == nil {
		s.Accounts = make(map[string]string)
	}
	s.Accounts[reg.Phone] = reg.Password
	return nil
}

// Profile implements Service.
func (s *StaticService) Profile(ctx context.Context, token string) (*Profile, error) {
	if err := s.begin(Call{Endpoint: EndpointProfile, Token: token}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Account == nil {
		return &Profile{}, nil
	}
	copied := *s.Account
	return &copied, nil
}

// MyOrders implements Service.
func (s *StaticService) MyOrders(ctx context.Context, token string) ([]Order, error) {
	if err := s.begin(Call{Endpoint: EndpointMyOrders, Token: token}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.Orders...), nil
}

// UsersWithOrders implements Service.
func (s *StaticService) UsersWithOrders(ctx context.Context, token string) ([]UserOrders, error) {
	if err := s.begin(Call{Endpoint: EndpointUsersWithOrders, Token: token}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UserOrders(nil), s.AllUsers...), nil
}

// InitiatePayment implements Service.
func (s *StaticService) InitiatePayment(ctx context.Context, token string, req PaymentRequest) (string, error) {
	if err := s.begin(Call{Endpoint: EndpointPayment, Token: token, Payment: req}); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isAbsoluteHTTP(s.PayURL) {
		return "", &Error{Op: EndpointPayment, Message: "Failed to place order"}
	}
	return s.PayURL, nil
}
