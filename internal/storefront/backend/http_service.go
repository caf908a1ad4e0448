package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// HTTPClient matches the subset of http.Client used by HTTPService.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Observer records backend call outcomes, typically as metrics.
type Observer interface {
	ObserveBackend(endpoint, outcome string, elapsed time.Duration)
}

// Option customises an HTTPService.
type Option func(*HTTPService)

// WithObserver attaches a call observer.
func WithObserver(o Observer) Option {
	return func(s *HTTPService) {
		s.observer = o
	}
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *HTTPService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// HTTPService implements Service against the food backend REST API. Every call is a single
// attempt; timeouts come from the supplied client and the request context.
type HTTPService struct {
	base     *url.URL
	client   HTTPClient
	observer Observer
	logger   *zap.Logger
	policy   *bluemonday.Policy
	now      func() time.Time
}

// NewHTTPService constructs a Service rooted at baseURL.
func NewHTTPService(baseURL string, client HTTPClient, opts ...Option) (*HTTPService, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend: base URL must be http or https, got %q", parsed.Scheme)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := &HTTPService{
		base:   parsed,
		client: client,
		logger: zap.NewNop(),
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// envelope is the union of the response shapes the backend uses.
type envelope struct {
	Status    *bool           `json:"status"`
	Message   json.RawMessage `json:"message"`
	Token     string          `json:"token"`
	YourToken string          `json:"your_token"`
	Data      json.RawMessage `json:"data"`
	Orders    json.RawMessage `json:"orders"`
	URL       string          `json:"url"`
}

// ListCatalog fetches every food item.
func (s *HTTPService) ListCatalog(ctx context.Context) ([]FoodItem, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "production/getallfood", nil, "")
	if err != nil {
		return nil, err
	}
	env, err := s.call(req, EndpointCatalogList)
	if err != nil {
		return nil, err
	}
	var items []FoodItem
	if err := decodeRaw(env.Message, &items); err != nil {
		return nil, s.fail(EndpointCatalogList, fmt.Errorf("backend: decode catalog: %w", err))
	}
	return items, nil
}

// CreateCatalogItem uploads a new dish. The backend authorises the call from the bearer token.
func (s *HTTPService) CreateCatalogItem(ctx context.Context, token string, item NewCatalogItem) error {
	body, contentType, err := multipartBody(func(mw *multipart.Writer) error {
		if err := mw.WriteField("title", strings.TrimSpace(item.Title)); err != nil {
			return err
		}
		if err := mw.WriteField("price", strings.TrimSpace(item.Price)); err != nil {
			return err
		}
		return writeFilePart(mw, "pic_url_file", item.Image)
	})
	if err != nil {
		return fmt.Errorf("backend: encode catalog item: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPost, "production/addfood", body, token)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	_, err = s.call(req, EndpointCatalogCreate)
	return err
}

// Login exchanges credentials for a bearer token.
func (s *HTTPService) Login(ctx context.Context, phone, password string) (string, error) {
	payload := map[string]any{
		"phone":    phoneValue(phone),
		"password": password,
	}
	req, err := s.newJSONRequest(ctx, http.MethodPost, "user/login", payload, "")
	if err != nil {
		return "", err
	}
	env, err := s.call(req, EndpointLogin)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(env.YourToken)
	if token == "" {
		token = strings.TrimSpace(env.Token)
	}
	if token == "" {
		return "", s.fail(EndpointLogin, &Error{Op: EndpointLogin, Message: "Login failed"})
	}
	return token, nil
}

// Register creates an account.
func (s *HTTPService) Register(ctx context.Context, reg Registration) error {
	body, contentType, err := multipartBody(func(mw *multipart.Writer) error {
		fields := []struct{ name, value string }{
			{"fullName", reg.FullName},
			{"phone", reg.Phone},
			{"password", reg.Password},
			{"user_address", reg.Address},
		}
		for _, f := range fields {
			if err := mw.WriteField(f.name, strings.TrimSpace(f.value)); err != nil {
				return err
			}
		}
		return writeFilePart(mw, "avatar", reg.Avatar)
	})
	if err != nil {
		return fmt.Errorf("backend: encode registration: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPost, "user/siginup", body, "")
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	_, err = s.call(req, EndpointRegister)
	return err
}

// Profile loads the caller's account.
func (s *HTTPService) Profile(ctx context.Context, token string) (*Profile, error) {
	req, err := s.newJSONRequest(ctx, http.MethodPost, "user/profile", map[string]string{"token": token}, token)
	if err != nil {
		return nil, err
	}
	env, err := s.call(req, EndpointProfile)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := decodeRaw(env.Data, &profile); err != nil {
		return nil, s.fail(EndpointProfile, fmt.Errorf("backend: decode profile: %w", err))
	}
	return &profile, nil
}

// MyOrders lists the caller's orders.
func (s *HTTPService) MyOrders(ctx context.Context, token string) ([]Order, error) {
	req, err := s.newJSONRequest(ctx, http.MethodPost, "production/my/all/orders", map[string]string{"token": token}, token)
	if err != nil {
		return nil, err
	}
	env, err := s.call(req, EndpointMyOrders)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := decodeRaw(env.Orders, &orders); err != nil {
		return nil, s.fail(EndpointMyOrders, fmt.Errorf("backend: decode orders: %w", err))
	}
	return orders, nil
}

// UsersWithOrders lists every account with its orders. Administrator only.
func (s *HTTPService) UsersWithOrders(ctx context.Context, token string) ([]UserOrders, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "production/getUsersWithOrders", nil, token)
	if err != nil {
		return nil, err
	}
	env, err := s.call(req, EndpointUsersWithOrders)
	if err != nil {
		return nil, err
	}
	var users []UserOrders
	if err := decodeRaw(env.Message, &users); err != nil {
		return nil, s.fail(EndpointUsersWithOrders, fmt.Errorf("backend: decode users: %w", err))
	}
	return users, nil
}

// InitiatePayment asks the backend for a hosted payment page and returns its absolute URL.
func (s *HTTPService) InitiatePayment(ctx context.Context, token string, in PaymentRequest) (string, error) {
	payload := struct {
		Name        string  `json:"name"`
		Amount      float64 `json:"amount"`
		FOODorderID string  `json:"FOODorderID"`
		Token       string  `json:"token"`
	}{
		Name:        in.Name,
		Amount:      in.Amount,
		FOODorderID: in.OrderID,
		Token:       token,
	}
	req, err := s.newJSONRequest(ctx, http.MethodPost, "api/v1/orders/payment", payload, token)
	if err != nil {
		return "", err
	}
	env, err := s.call(req, EndpointPayment)
	if err != nil {
		return "", err
	}
	target := strings.TrimSpace(env.URL)
	if !isAbsoluteHTTP(target) {
		msg := s.message(env.Message)
		if msg == "" {
			msg = "Failed to place order"
		}
		return "", s.fail(EndpointPayment, &Error{Op: EndpointPayment, Message: msg})
	}
	return target, nil
}

// call executes req once and returns the decoded envelope. Non-2xx responses and bodies with
// status:false become *Error values.
func (s *HTTPService) call(req *http.Request, endpoint string) (*envelope, error) {
	start := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.record(endpoint, "error", start)
		s.logger.Warn("backend request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("backend: %s: request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		s.record(endpoint, "error", start)
		return nil, fmt.Errorf("backend: %s: read response: %w", endpoint, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome := "rejected"
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			outcome = "unauthorized"
		case resp.StatusCode >= 500:
			outcome = "error"
		}
		s.record(endpoint, outcome, start)
		apiErr := &Error{Op: endpoint, Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = s.message(env.Message)
		}
		s.logger.Warn("backend call rejected",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	if decodeErr != nil {
		s.record(endpoint, "error", start)
		return nil, fmt.Errorf("backend: %s: decode response: %w", endpoint, decodeErr)
	}
	if env.Status != nil && !*env.Status {
		s.record(endpoint, "rejected", start)
		apiErr := &Error{Op: endpoint, Status: resp.StatusCode, Message: s.message(env.Message)}
		s.logger.Info("backend call returned status false",
			zap.String("endpoint", endpoint),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	s.record(endpoint, "ok", start)
	s.logger.Debug("backend call completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", s.now().Sub(start)),
	)
	return &env, nil
}

func (s *HTTPService) fail(endpoint string, err error) error {
	s.logger.Warn("backend response unusable", zap.String("endpoint", endpoint), zap.Error(err))
	return err
}

func (s *HTTPService) record(endpoint, outcome string, start time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveBackend(endpoint, outcome, s.now().Sub(start))
}

// message extracts a displayable string from a message field, stripping any markup.
func (s *HTTPService) message(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func (s *HTTPService) newRequest(ctx context.Context, method, endpoint string, body io.Reader, token string) (*http.Request, error) {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	req, err := http.NewRequestWithContext(ctx, method, s.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (s *HTTPService) newJSONRequest(ctx context.Context, method, endpoint string, payload any, token string) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("backend: encode payload: %w", err)
	}
	req, err := s.newRequest(ctx, method, endpoint, &buf, token)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func decodeRaw(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func multipartBody(write func(*multipart.Writer) error) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := write(mw); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func writeFilePart(mw *multipart.Writer, field string, upload Upload) error {
	if upload.Body == nil {
		return nil
	}
	filename := upload.Filename
	if filename == "" {
		filename = field
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, upload.Body)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// phoneValue sends all-digit phone numbers as JSON numbers, matching what the backend stores.
func phoneValue(phone string) any {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return phone
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return phone
		}
	}
	n, err := strconv.ParseInt(phone, 10, 64)
	if err != nil {
		return phone
	}
	return n
}

func isAbsoluteHTTP(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
