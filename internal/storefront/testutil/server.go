package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/guard"
	"uemfood.app/storefront/internal/storefront/httpserver"
	"uemfood.app/storefront/internal/storefront/metrics"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
)

// Cookie and header names used by NewServer.
const (
	TokenCookie = "authToken"
	FlashCookie = "storefront_flash"
	CSRFCookie  = "storefront_csrf"
	CSRFHeader  = "X-CSRF-Token"
)

var sessionHashKey = []byte("storefront-test-hash-key-32bytes")

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithBackend wires a custom backend service implementation.
func WithBackend(svc backend.Service) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Backend = svc
	}
}

// WithAdminPhones replaces the configured administrator phone numbers.
func WithAdminPhones(phones ...string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Guard = guard.New(guard.Options{
			TokenName: TokenCookie,
			Roles:     rbac.NewResolver(phones),
			Observer:  cfg.Metrics,
		})
	}
}

// WithAdminPassphraseHash requires the bcrypt-hashed passphrase on the add-food form.
func WithAdminPassphraseHash(hash string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.AdminPassphraseHash = hash
	}
}

// WithTokenTTL overrides the credential lifetime.
func WithTokenTTL(ttl time.Duration) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.TokenTTL = ttl
	}
}

// SessionManager returns a manager sharing NewServer's keys, for forging cookies in tests.
func SessionManager(t testing.TB) *session.Manager {
	t.Helper()

	manager, err := session.NewManager(session.Config{HashKey: sessionHashKey})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return manager
}

// NewServer constructs an httptest server running the storefront HTTP stack with a
// StaticService backend and AdminPhone configured as administrator.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	m := metrics.New()
	cfg := httpserver.Config{
		Address:         ":0",
		Environment:     "test",
		Backend:         backend.NewStaticService(),
		Sessions:        SessionManager(t),
		Metrics:         m,
		TokenName:       TokenCookie,
		TokenTTL:        7 * 24 * time.Hour,
		FlashCookieName: FlashCookie,
		CSRFCookieName:  CSRFCookie,
		CSRFHeaderName:  CSRFHeader,
		MaxUploadBytes:  1 << 20,
		Guard: guard.New(guard.Options{
			TokenName: TokenCookie,
			Roles:     rbac.NewResolver([]string{AdminPhone}),
			Observer:  m,
		}),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a cookie-keeping client that does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SignIn stores token in the client's cookie jar exactly as a successful login would.
func SignIn(t testing.TB, client *http.Client, ts *httptest.Server, token string) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	SessionManager(t).Bind(rec, req).Set(TokenCookie, token, time.Hour)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	client.Jar.SetCookies(u, rec.Result().Cookies())
}

// CSRFToken loads path and returns the token embedded in the page.
func CSRFToken(t testing.TB, client *http.Client, ts *httptest.Server, path string) string {
	t.Helper()

	resp, err := client.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()

	doc := ReadHTML(t, resp.Body)
	token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || strings.TrimSpace(token) == "" {
		t.Fatalf("csrf token missing on %s (status %d)", path, resp.StatusCode)
	}
	return token
}

// Cookie returns the named cookie held by client for ts, if any.
func Cookie(t testing.TB, client *http.Client, ts *httptest.Server, name string) (*http.Cookie, bool) {
	t.Helper()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
