package ui

import (
	"net/http"

	"go.uber.org/zap"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/observability"
)

// ProfileData backs the profile page.
type ProfileData struct {
	Profile *backend.Profile
	Error   string
}

// OrdersData backs the order history page.
type OrdersData struct {
	Orders []backend.Order
	Error  string
}

// UsersOrdersData backs the administrator order listing.
type UsersOrdersData struct {
	Users []backend.UserOrders
	Error string
}

// Profile renders the caller's account with the two most recent orders.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.backend.Profile(r.Context(), h.token(r))
	if err != nil {
		if h.revokeOnUnauthorized(w, r, err, "/profile") {
			return
		}
		observability.FromContext(r.Context()).Warn("fetch profile", zap.Error(err))
		h.render(w, r, backendStatus(err), "profile", "Profile", ProfileData{Error: backend.UserMessage(err)})
		return
	}
	h.render(w, r, http.StatusOK, "profile", "Profile", ProfileData{Profile: profile})
}

// OrderHistory lists the caller's orders.
func (h *Handlers) OrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.backend.MyOrders(r.Context(), h.token(r))
	if err != nil {
		if h.revokeOnUnauthorized(w, r, err, "/orderhistory") {
			return
		}
		observability.FromContext(r.Context()).Warn("fetch orders", zap.Error(err))
		h.render(w, r, backendStatus(err), "orderhistory", "My orders", OrdersData{Error: backend.UserMessage(err)})
		return
	}
	h.render(w, r, http.StatusOK, "orderhistory", "My orders", OrdersData{Orders: orders})
}

// AllUsersOrders lists every account with its orders.
func (h *Handlers) AllUsersOrders(w http.ResponseWriter, r *http.Request) {
	users, err := h.backend.UsersWithOrders(r.Context(), h.token(r))
	if err != nil {
		if h.revokeOnUnauthorized(w, r, err, "/allusersorders") {
			return
		}
		observability.FromContext(r.Context()).Warn("fetch users with orders", zap.Error(err))
		h.render(w, r, backendStatus(err), "allusersorders", "All orders", UsersOrdersData{Error: backend.UserMessage(err)})
		return
	}
	h.render(w, r, http.StatusOK, "allusersorders", "All orders", UsersOrdersData{Users: users})
}
