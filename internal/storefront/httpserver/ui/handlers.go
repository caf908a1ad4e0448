// Package ui holds the storefront page handlers.
package ui

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/guard"
	"uemfood.app/storefront/internal/storefront/httpserver/middleware"
	"uemfood.app/storefront/internal/storefront/identity"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
	"uemfood.app/storefront/internal/storefront/templates"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// Config wires the handler dependencies.
type Config struct {
	Backend   backend.Service
	Renderer  *templates.Renderer
	TokenName string
	TokenTTL  time.Duration
	LoginPath string
	// AdminPassphraseHash is an optional bcrypt hash required to add catalog items.
	AdminPassphraseHash string
	MaxUploadBytes      int64
}

// Handlers serves the storefront pages.
type Handlers struct {
	backend        backend.Service
	renderer       *templates.Renderer
	tokenName      string
	tokenTTL       time.Duration
	loginPath      string
	passphraseHash []byte
	maxUpload      int64
}

// New constructs Handlers.
func New(cfg Config) *Handlers {
	h := &Handlers{
		backend:   cfg.Backend,
		renderer:  cfg.Renderer,
		tokenName: cfg.TokenName,
		tokenTTL:  cfg.TokenTTL,
		loginPath: cfg.LoginPath,
		maxUpload: cfg.MaxUploadBytes,
	}
	if cfg.AdminPassphraseHash != "" {
		h.passphraseHash = []byte(cfg.AdminPassphraseHash)
	}
	if h.tokenName == "" {
		h.tokenName = "authToken"
	}
	if h.tokenTTL <= 0 {
		h.tokenTTL = defaultTokenTTL
	}
	if h.loginPath == "" {
		h.loginPath = "/login"
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 5 << 20
	}
	return h
}

// Page is the view model shared by every template.
type Page struct {
	Title         string
	Path          string
	Environment   string
	Production    bool
	CSRFToken     string
	Authenticated bool
	Identity      identity.Identity
	Caps          map[rbac.Capability]bool
	Flash         *session.Flash
	Data          any
}

func (h *Handlers) page(r *http.Request, title string, data any) Page {
	ctx := r.Context()
	p := Page{
		Title:     title,
		Path:      r.URL.Path,
		CSRFToken: middleware.CSRFTokenFromContext(ctx),
		Data:      data,
	}
	if info, ok := middleware.RequestInfoFromContext(ctx); ok {
		p.Environment = info.Environment
		p.Production = info.Production
	}
	sess := middleware.GuardFromContext(ctx)
	if sess.Authenticated() {
		p.Authenticated = true
		p.Identity = sess.Identity()
		p.Caps = rbac.CapabilitiesForRoles(sess.Roles())
	}
	if flash, ok := middleware.PopFlash(ctx); ok {
		p.Flash = &flash
	}
	return p
}

// render writes page with status. The flash is consumed before the header is written so the
// clearing cookie reaches the browser.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	p := h.page(r, title, data)
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page, p); err != nil {
		observability.FromContext(r.Context()).Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) renderFragment(w http.ResponseWriter, r *http.Request, page, block string, data any) {
	var buf bytes.Buffer
	if err := h.renderer.RenderFragment(&buf, page, block, data); err != nil {
		observability.FromContext(r.Context()).Error("render fragment", zap.String("page", page), zap.String("block", block), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// revokeOnUnauthorized handles a backend 401: the guard session is revoked and the first
// revocation navigates to the login page. It reports whether err was consumed.
func (h *Handlers) revokeOnUnauthorized(w http.ResponseWriter, r *http.Request, err error, next string) bool {
	if !backend.IsUnauthorized(err) {
		return false
	}
	logger := observability.FromContext(r.Context())
	if middleware.GuardFromContext(r.Context()).Revoke(guard.ReasonRevoked) {
		logger.Info("backend rejected credential", zap.Error(err))
		middleware.RedirectToLogin(w, r, h.loginPath, next, guard.ReasonRevoked)
		return true
	}
	// Already revoked and redirected by an earlier call in this request.
	logger.Debug("credential already revoked", zap.Error(err))
	return true
}

func (h *Handlers) token(r *http.Request) string {
	return middleware.GuardFromContext(r.Context()).Token()
}

// backendStatus maps a backend failure to the status used when re-rendering a page.
func backendStatus(err error) int {
	var be *backend.Error
	if errors.As(err, &be) && be.Status < 500 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
