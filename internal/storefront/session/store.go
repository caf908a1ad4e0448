package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Store persists named values for the current browser context. Operations are best-effort:
// failures are logged and never surfaced to callers.
type Store interface {
	// Get returns the current value for name, or false when absent or expired.
	Get(name string) (string, bool)
	// Set writes value under name with an expiry ttl from now, replacing any previous value.
	Set(name, value string, ttl time.Duration)
	// Clear invalidates the value immediately.
	Clear(name string)
}

// Config controls cookie encoding and attributes for the cookie-backed store.
type Config struct {
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieHTTPOnly *bool
	CookieSameSite http.SameSite
	Now            func() time.Time
	Logger         *zap.Logger
}

// Manager encodes cookie values with securecookie and binds stores to requests.
type Manager struct {
	cfg      Config
	codec    *securecookie.SecureCookie
	now      func() time.Time
	httpOnly bool
	logger   *zap.Logger
}

// record is the signed cookie payload; the embedded expiry rejects replayed stale cookies.
type record struct {
	Value     string    `json:"v"`
	ExpiresAt time.Time `json:"exp"`
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Expiry lives in the record so long TTLs are not capped by the codec default.
	codec.MaxAge(0)

	httpOnly := true
	if cfg.CookieHTTPOnly != nil {
		httpOnly = *cfg.CookieHTTPOnly
	}

	return &Manager{
		cfg:      cfg,
		codec:    codec,
		now:      nowFn,
		httpOnly: httpOnly,
		logger:   logger,
	}, nil
}

// Bind returns a Store reading cookies from r and writing them to w.
func (m *Manager) Bind(w http.ResponseWriter, r *http.Request) *CookieStore {
	return &CookieStore{
		manager: m,
		w:       w,
		r:       r,
		pending: make(map[string]*pendingEntry),
	}
}

// CookieStore is a Store scoped to a single request/response pair. Writes are visible to
// later reads in the same request.
type CookieStore struct {
	manager *Manager
	w       http.ResponseWriter
	r       *http.Request

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

type pendingEntry struct {
	value     string
	expiresAt time.Time
	cleared   bool
}

// Get implements Store.
func (s *CookieStore) Get(name string) (string, bool) {
	now := s.manager.now()

	s.mu.Lock()
	entry, ok := s.pending[name]
	s.mu.Unlock()
	if ok {
		if entry.cleared || !now.Before(entry.expiresAt) {
			return "", false
		}
		return entry.value, true
	}

	if s.r == nil {
		return "", false
	}
	cookie, err := s.r.Cookie(name)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	var stored record
	if err := s.manager.codec.Decode(name, cookie.Value, &stored); err != nil {
		s.manager.logger.Debug("session: discarding undecodable cookie", zap.String("cookie", name), zap.Error(err))
		return "", false
	}
	if stored.Value == "" || !now.Before(stored.ExpiresAt) {
		return "", false
	}
	return stored.Value, true
}

// Set implements Store.
func (s *CookieStore) Set(name, value string, ttl time.Duration) {
	if ttl <= 0 {
		s.Clear(name)
		return
	}
	now := s.manager.now()
	expiresAt := now.Add(ttl).UTC()

	encoded, err := s.manager.codec.Encode(name, record{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		s.manager.logger.Warn("session: encode cookie failed", zap.String("cookie", name), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.pending[name] = &pendingEntry{value: value, expiresAt: expiresAt}
	s.mu.Unlock()

	if s.w == nil {
		return
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     s.manager.cfg.CookiePath,
		Domain:   s.manager.cfg.CookieDomain,
		Expires:  expiresAt,
		MaxAge:   int(ttl.Round(time.Second).Seconds()),
		Secure:   s.manager.cfg.CookieSecure,
		HttpOnly: s.manager.httpOnly,
		SameSite: s.manager.cfg.CookieSameSite,
	})
}

// Clear implements Store by writing an already-expired cookie.
func (s *CookieStore) Clear(name string) {
	s.mu.Lock()
	s.pending[name] = &pendingEntry{cleared: true}
	s.mu.Unlock()

	if s.w == nil {
		return
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     s.manager.cfg.CookiePath,
		Domain:   s.manager.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   s.manager.cfg.CookieSecure,
		HttpOnly: s.manager.httpOnly,
		SameSite: s.manager.cfg.CookieSameSite,
	})
}

// MemoryStore is an in-process Store used by tests and tools.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]pendingEntry
}

// NewMemoryStore returns an empty MemoryStore. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, entries: make(map[string]pendingEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok || entry.cleared || !s.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// Set implements Store.
func (s *MemoryStore) Set(name, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		s.entries[name] = pendingEntry{cleared: true}
		return
	}
	s.entries[name] = pendingEntry{value: value, expiresAt: s.now().Add(ttl)}
}

// Clear implements Store.
func (s *MemoryStore) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = pendingEntry{cleared: true}
}
