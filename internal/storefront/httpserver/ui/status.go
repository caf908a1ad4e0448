package ui

import "net/http"

type statusData struct {
	Code     int
	Heading  string
	Message  string
	Link     string
	LinkText string
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, code int, data statusData) {
	data.Code = code
	h.render(w, r, code, "status", data.Heading, data)
}

// NotFound renders the 404 page.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusNotFound, statusData{
		Heading: "Page not found",
		Message: "The page you are looking for does not exist.",
	})
}

// Forbidden renders the 403 page for signed-in visitors lacking a capability.
func (h *Handlers) Forbidden(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusForbidden, statusData{
		Heading: "Access denied",
		Message: "You do not have permission to view this page.",
	})
}

// MethodNotAllowed renders the 405 page.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusMethodNotAllowed, statusData{
		Heading: "Method not allowed",
		Message: "This page does not accept that request.",
	})
}

// FailedPayment is where the payment provider returns the visitor after a failed payment.
func (h *Handlers) FailedPayment(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusOK, statusData{
		Heading:  "Payment failed",
		Message:  "Your payment could not be completed. No amount was charged.",
		Link:     "/",
		LinkText: "Back to menu",
	})
}
