package ui

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/guard"
	"uemfood.app/storefront/internal/storefront/httpserver/middleware"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
)

const (
	msgFillAllFields  = "Please fill all fields"
	msgUploadTooLarge = "The uploaded file is too large"
)

// LoginData backs the login page.
type LoginData struct {
	Phone string
	Next  string
	Error string
}

// RegisterData backs the registration page.
type RegisterData struct {
	FullName string
	Phone    string
	Address  string
	Error    string
}

// LoginForm renders the login page. Visitors who are already signed in go to the menu.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if middleware.GuardFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := LoginData{Next: h.sanitizeNext(r.URL.Query().Get("next"))}
	h.render(w, r, http.StatusOK, "login", "Login", data)
}

// LoginSubmit exchanges credentials for a token and stores it for the configured window.
func (h *Handlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	data := LoginData{
		Phone: strings.TrimSpace(r.PostFormValue("phone")),
		Next:  h.sanitizeNext(r.PostFormValue("next")),
	}
	password := r.PostFormValue("password")
	if data.Phone == "" || password == "" {
		data.Error = msgFillAllFields
		h.render(w, r, http.StatusBadRequest, "login", "Login", data)
		return
	}

	logger := observability.FromContext(r.Context())
	token, err := h.backend.Login(r.Context(), data.Phone, password)
	if err != nil {
		logger.Info("login rejected", zap.Error(err))
		data.Error = backend.UserMessage(err)
		h.render(w, r, backendStatus(err), "login", "Login", data)
		return
	}

	store, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		logger.Error("login without session store")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	store.Set(h.tokenName, token, h.tokenTTL)
	middleware.PushFlash(r.Context(), session.FlashSuccess, "Login successful!")

	target := data.Next
	if target == "" {
		target = "/"
	}
	middleware.Navigate(w, r, target)
}

// RegisterForm renders the sign-up page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", "Register", RegisterData{})
}

// RegisterSubmit validates the sign-up form and forwards it with the avatar to the backend.
func (h *Handlers) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.render(w, r, uploadErrorStatus(err), "register", "Register", RegisterData{Error: uploadErrorMessage(err)})
		return
	}
	defer cleanupMultipart(r)

	data := RegisterData{
		FullName: strings.TrimSpace(r.PostFormValue("fullName")),
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
		Address:  strings.TrimSpace(r.PostFormValue("user_address")),
	}
	password := r.PostFormValue("password")
	if data.FullName == "" || data.Phone == "" || password == "" || data.Address == "" {
		data.Error = msgFillAllFields
		h.render(w, r, http.StatusBadRequest, "register", "Register", data)
		return
	}
	avatar, header, err := r.FormFile("avatar")
	if err != nil {
		data.Error = "Please upload a profile image"
		h.render(w, r, http.StatusBadRequest, "register", "Register", data)
		return
	}
	defer avatar.Close()

	err = h.backend.Register(r.Context(), backend.Registration{
		FullName: data.FullName,
		Phone:    data.Phone,
		Password: password,
		Address:  data.Address,
		Avatar:   uploadFrom(avatar, header),
	})
	if err != nil {
		observability.FromContext(r.Context()).Info("registration rejected", zap.Error(err))
		data.Error = backend.UserMessage(err)
		h.render(w, r, backendStatus(err), "register", "Register", data)
		return
	}

	middleware.PushFlash(r.Context(), session.FlashSuccess, "Registration successful! Please login")
	middleware.Navigate(w, r, h.loginPath)
}

// Logout invalidates the stored credential immediately.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GuardFromContext(r.Context())
	if !sess.Revoke(guard.ReasonLoggedOut) {
		if store, ok := middleware.StoreFromContext(r.Context()); ok {
			store.Clear(h.tokenName)
		}
	}
	middleware.PushFlash(r.Context(), session.FlashSuccess, "Logged out")
	middleware.Navigate(w, r, "/")
}

// UploadTooLarge answers a form post whose body exceeded the upload limit before it could be
// read. Upload forms are shown again with the error; other paths get the status page.
func (h *Handlers) UploadTooLarge(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GuardFromContext(r.Context())
	switch {
	case r.URL.Path == "/register":
		h.render(w, r, http.StatusRequestEntityTooLarge, "register", "Register", RegisterData{Error: msgUploadTooLarge})
	case r.URL.Path == "/addfood" && sess.Allows(rbac.CapCatalogManage):
		data := AddFoodData{PassphraseRequired: len(h.passphraseHash) > 0, Error: msgUploadTooLarge}
		h.render(w, r, http.StatusRequestEntityTooLarge, "addfood", "Add food", data)
	default:
		h.renderStatus(w, r, http.StatusRequestEntityTooLarge, statusData{
			Heading: "Request too large",
			Message: msgUploadTooLarge,
		})
	}
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) backend.Upload {
	up := backend.Upload{Body: file}
	if header != nil {
		up.Filename = header.Filename
		up.ContentType = header.Header.Get("Content-Type")
	}
	return up
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func uploadErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func uploadErrorMessage(err error) string {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return msgUploadTooLarge
	}
	return "Invalid form submission"
}

// sanitizeNext keeps only same-site relative paths, excluding the login page itself.
func (h *Handlers) sanitizeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}
	pathValue := parsed.Path
	if pathValue == "" {
		pathValue = "/"
	}
	unescaped, err := url.PathUnescape(pathValue)
	if err != nil || strings.Contains(unescaped, "\\") {
		return ""
	}
	cleaned := path.Clean(unescaped)
	if !strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "//") {
		return ""
	}
	if cleaned == h.loginPath || cleaned == "/logout" {
		return ""
	}
	if parsed.RawQuery != "" {
		cleaned += "?" + parsed.RawQuery
	}
	return cleaned
}
