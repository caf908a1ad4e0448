package middleware

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"uemfood.app/storefront/internal/storefront/guard"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
)

type authContextKey string

const guardSessionKey authContextKey = "auth.guard"

// Auth evaluates the stored credential once per request and attaches the guard session to the
// context. Public pages render for anonymous visitors; a credential that fails the check is
// cleared so the browser stops presenting it.
func Auth(g *guard.Guard) func(http.Handler) http.Handler {
	if g == nil {
		g = guard.New(guard.Options{})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, _ := StoreFromContext(r.Context())
			sess := g.Check(store)

			if !sess.Authenticated() && sess.Reason() != guard.ReasonMissingToken && store != nil {
				observability.FromContext(r.Context()).Info("stored credential rejected",
					zap.String("reason", sess.Reason()),
				)
				store.Clear(g.TokenName())
			}

			ctx := context.WithValue(r.Context(), guardSessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GuardFromContext returns the guard session for the request. A missing session reports
// Unchecked.
func GuardFromContext(ctx context.Context) *guard.Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(guardSessionKey).(*guard.Session)
	return sess
}

// WithGuard attaches a guard session to ctx.
func WithGuard(ctx context.Context, sess *guard.Session) context.Context {
	return context.WithValue(ctx, guardSessionKey, sess)
}

// RequireCapability lets the request through only when the guard session holds capability.
// Unauthenticated visitors are sent to loginPath without any backend call; authenticated
// visitors lacking the capability receive forbidden (or a plain 403 when nil).
func RequireCapability(capability rbac.Capability, loginPath string, forbidden http.Handler) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}
	if forbidden == nil {
		forbidden = http.HandlerFunc(plainForbidden)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GuardFromContext(r.Context())
			if !sess.Authenticated() {
				reason := sess.Reason()
				if reason == "" {
					reason = guard.ReasonMissingToken
				}
				observability.FromContext(r.Context()).Debug("guard redirect",
					zap.String("capability", string(capability)),
					zap.String("reason", reason),
				)
				RedirectToLogin(w, r, loginPath, nextTarget(r), reason)
				return
			}
			if !sess.Allows(capability) {
				observability.FromContext(r.Context()).Info("capability denied",
					zap.String("capability", string(capability)),
					zap.String("phone", sess.Identity().Phone),
				)
				if IsHTMXRequest(r.Context()) {
					w.Header().Set("HX-Refresh", "true")
				}
				forbidden.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectToLogin queues a notification for reason and navigates to the login page, carrying
// next so the visitor returns after signing in.
func RedirectToLogin(w http.ResponseWriter, r *http.Request, loginPath, next, reason string) {
	if msg := LoginReasonMessage(reason); msg != "" {
		PushFlash(r.Context(), session.FlashError, msg)
	}
	target := LoginURL(loginPath, next, reason)

	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// LoginURL builds the login path with optional next and reason parameters.
func LoginURL(loginPath, next, reason string) string {
	u, err := url.Parse(loginPath)
	if err != nil {
		return loginPath
	}
	q := u.Query()
	if next != "" && next != "/" {
		q.Set("next", next)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LoginReasonMessage maps a guard reason to the notification shown on the login page.
func LoginReasonMessage(reason string) string {
	switch reason {
	case guard.ReasonMissingToken:
		return "Please login to continue"
	case guard.ReasonTokenExpired, guard.ReasonRevoked:
		return "Your session has expired. Please login again."
	case guard.ReasonTokenInvalid, guard.ReasonMissingClaim:
		return "Session invalid. Please login again."
	default:
		return ""
	}
}

func nextTarget(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if info := HTMXInfoFromContext(r.Context()); info.CurrentURL != "" {
			if u, err := url.Parse(info.CurrentURL); err == nil {
				return u.RequestURI()
			}
		}
		return ""
	}
	return r.URL.RequestURI()
}

func plainForbidden(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
