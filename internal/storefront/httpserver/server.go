package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/guard"
	custommw "uemfood.app/storefront/internal/storefront/httpserver/middleware"
	"uemfood.app/storefront/internal/storefront/httpserver/ui"
	"uemfood.app/storefront/internal/storefront/metrics"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
	"uemfood.app/storefront/internal/storefront/templates"
	"uemfood.app/storefront/public"
)

const loginPath = "/login"

// Config holds runtime options for the storefront HTTP server.
type Config struct {
	Address     string
	Environment string

	Backend  backend.Service
	Sessions *session.Manager
	Guard    *guard.Guard
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	TokenName       string
	TokenTTL        time.Duration
	FlashCookieName string
	CSRFCookieName  string
	CSRFHeaderName  string
	CookieSecure    bool

	AdminPassphraseHash string
	MaxUploadBytes      int64
	RequestTimeout      time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// NewHandler builds the routed handler without binding a listener.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Backend == nil {
		return nil, errors.New("httpserver: backend service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("httpserver: session manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := cfg.Guard
	if g == nil {
		g = guard.New(guard.Options{TokenName: cfg.TokenName, Observer: cfg.Metrics})
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("httpserver: %w", err)
	}
	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("httpserver: embed static: %w", err)
	}

	pages := ui.New(ui.Config{
		Backend:             cfg.Backend,
		Renderer:            renderer,
		TokenName:           g.TokenName(),
		TokenTTL:            cfg.TokenTTL,
		LoginPath:           loginPath,
		AdminPassphraseHash: cfg.AdminPassphraseHash,
		MaxUploadBytes:      maxUpload,
	})

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.RequestLogger(logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout))

	router.Get("/healthz", healthz)
	router.Handle("/metrics", cfg.Metrics.Handler())
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	router.Group(func(r chi.Router) {
		r.Use(custommw.LimitBody(maxUpload))
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.RequestInfoMiddleware(cfg.Environment))
		r.Use(custommw.Session(cfg.Sessions, cfg.FlashCookieName))
		r.Use(custommw.Auth(g))
		r.Use(custommw.CSRF(custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CookieSecure,
			MaxMemory:  maxUpload,
			TooLarge:   http.HandlerFunc(pages.UploadTooLarge),
		}))

		mountPages(r, pages)
	})

	return router, nil
}

func mountPages(r chi.Router, pages *ui.Handlers) {
	forbidden := http.HandlerFunc(pages.Forbidden)
	require := func(capability rbac.Capability) func(http.Handler) http.Handler {
		return custommw.RequireCapability(capability, loginPath, forbidden)
	}

	r.NotFound(pages.NotFound)
	r.MethodNotAllowed(pages.MethodNotAllowed)

	r.Get("/", pages.Home)
	r.Get("/login", pages.LoginForm)
	r.Post("/login", pages.LoginSubmit)
	r.Get("/register", pages.RegisterForm)
	r.Post("/register", pages.RegisterSubmit)
	r.Post("/logout", pages.Logout)
	r.Get("/faildpayment", pages.FailedPayment)
	r.Get("/payment/failed", pages.FailedPayment)

	r.With(require(rbac.CapProfileSelf)).Get("/profile", pages.Profile)
	r.With(require(rbac.CapOrdersOwn)).Get("/orderhistory", pages.OrderHistory)
	r.With(require(rbac.CapCheckout)).Get("/product", pages.Product)
	r.With(require(rbac.CapCheckout)).Post("/product/checkout", pages.Checkout)

	r.Group(func(r chi.Router) {
		r.Use(require(rbac.CapCatalogManage))
		r.Get("/addfood", pages.AddFoodForm)
		r.Post("/addfood", pages.AddFoodSubmit)
	})
	r.With(require(rbac.CapOrdersAll)).Get("/allusersorders", pages.AllUsersOrders)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
