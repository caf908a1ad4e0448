package middleware

import (
	"context"
	"net/http"

	"uemfood.app/storefront/internal/storefront/session"
)

type sessionContextKey string

const requestSessionKey sessionContextKey = "storefront.session"

type requestSession struct {
	store     session.Store
	flashName string
}

// Session binds a cookie-backed store to each request. flashName is the cookie used for
// one-shot notifications.
func Session(manager *session.Manager, flashName string) func(http.Handler) http.Handler {
	if manager == nil {
		panic("session manager is required")
	}
	if flashName == "" {
		flashName = "storefront_flash"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rs := &requestSession{store: manager.Bind(w, r), flashName: flashName}
			ctx := context.WithValue(r.Context(), requestSessionKey, rs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithStore attaches an arbitrary store to ctx. Used by tests and tools.
func WithStore(ctx context.Context, store session.Store, flashName string) context.Context {
	return context.WithValue(ctx, requestSessionKey, &requestSession{store: store, flashName: flashName})
}

// StoreFromContext retrieves the store bound to this request.
func StoreFromContext(ctx context.Context) (session.Store, bool) {
	if ctx == nil {
		return nil, false
	}
	rs, ok := ctx.Value(requestSessionKey).(*requestSession)
	if !ok || rs == nil || rs.store == nil {
		return nil, false
	}
	return rs.store, true
}

// PushFlash queues a notification for the next rendered page.
func PushFlash(ctx context.Context, kind session.FlashKind, message string) {
	rs, ok := ctx.Value(requestSessionKey).(*requestSession)
	if !ok || rs == nil {
		return
	}
	session.PushFlash(rs.store, rs.flashName, session.Flash{Kind: kind, Message: message})
}

// PopFlash consumes the pending notification, if any.
func PopFlash(ctx context.Context) (session.Flash, bool) {
	rs, ok := ctx.Value(requestSessionKey).(*requestSession)
	if !ok || rs == nil {
		return session.Flash{}, false
	}
	return session.PopFlash(rs.store, rs.flashName)
}
