package httpserver_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/testutil"
)

func seededBackend(t *testing.T) *backend.StaticService {
	t.Helper()

	svc := backend.NewStaticService(
		backend.FoodItem{ID: "f1", Title: "Paneer Roll", Price: 120, PicURL: "https://cdn.example/roll.png"},
		backend.FoodItem{ID: "f2", Title: "Masala Dosa", Price: 80, PicURL: "https://cdn.example/dosa.png"},
	)
	svc.Accounts[testutil.AdminPhone] = "arnab"
	svc.Tokens[testutil.AdminPhone] = testutil.UserToken(t, testutil.AdminPhone, "Arnab")
	svc.Account = &backend.Profile{
		ID:      "65a1b2c3d4e5f60718293a4b",
		Name:    "Arnab",
		Phone:   backend.Text(testutil.AdminPhone),
		Address: "Kolkata",
		Orders: []backend.Order{
			{ID: "o1", Title: "Paneer Roll", Price: 120},
			{ID: "o2", Title: "Masala Dosa", Price: 80},
			{ID: "o3", Title: "Tea", Price: 10},
		},
	}
	svc.Orders = svc.Account.Orders
	svc.PayURL = "https://pay.example/checkout/session-42?ref=uem"
	return svc
}

func postForm(t *testing.T, client *http.Client, ts *httptest.Server, path, csrf string, values url.Values) *http.Response {
	t.Helper()

	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", csrf)
	resp, err := client.PostForm(ts.URL+path, values)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, client *http.Client, ts *httptest.Server, path string) *http.Response {
	t.Helper()

	resp, err := client.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestMalformedTokenRedirectsWithoutBackendCall(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, "not-a-jwt")

	resp := get(t, client, ts, "/profile")

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "/profile", loc.Query().Get("next"))
	require.Equal(t, "token_invalid", loc.Query().Get("reason"))
	require.Zero(t, svc.CallsTo(backend.EndpointProfile))

	_, stillThere := testutil.Cookie(t, client, ts, testutil.TokenCookie)
	require.False(t, stillThere, "malformed credential should be cleared")
}

func TestLoginStoresTokenForConfiguredWindow(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)

	csrf := testutil.CSRFToken(t, client, ts, "/login")
	resp := postForm(t, client, ts, "/login", csrf, url.Values{
		"phone":    {testutil.AdminPhone},
		"password": {"arnab"},
	})

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	cookie := findCookie(resp, testutil.TokenCookie)
	require.NotNil(t, cookie)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	require.True(t, cookie.HttpOnly)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), cookie.Expires, time.Minute)
}

func TestLoginThenCatalogRendersIdentity(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)

	csrf := testutil.CSRFToken(t, client, ts, "/login")
	resp := postForm(t, client, ts, "/login", csrf, url.Values{
		"phone":    {testutil.AdminPhone},
		"password": {"arnab"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	home := get(t, client, ts, "/")
	require.Equal(t, http.StatusOK, home.StatusCode)
	doc := testutil.ReadHTML(t, home.Body)

	require.Equal(t, 2, doc.Find("article.card").Length())
	require.Equal(t, "Paneer Roll", strings.TrimSpace(doc.Find("article.card .card-title").First().Text()))
	require.Equal(t, "₹120", strings.TrimSpace(doc.Find("article.card .price").First().Text()))
	phone, ok := doc.Find(".nav-user a").Attr("data-user-phone")
	require.True(t, ok)
	require.Equal(t, testutil.AdminPhone, phone)
	require.Equal(t, "Login successful!", strings.TrimSpace(doc.Find(".flash-success").Text()))
	require.Equal(t, 1, doc.Find(`a[href="/addfood"]`).Length(), "admin phone should see add food link")

	// The flash is one-shot.
	again := testutil.ReadHTML(t, get(t, client, ts, "/").Body)
	require.Zero(t, again.Find(".flash").Length())
}

func TestLoginValidationAndRejection(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	csrf := testutil.CSRFToken(t, client, ts, "/login")

	resp := postForm(t, client, ts, "/login", csrf, url.Values{"phone": {testutil.AdminPhone}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "Please fill all fields", strings.TrimSpace(doc.Find(".alert-error").Text()))
	require.Zero(t, svc.CallsTo(backend.EndpointLogin))

	resp = postForm(t, client, ts, "/login", csrf, url.Values{"phone": {testutil.AdminPhone}, "password": {"wrong"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	doc = testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "Invalid phone or password", strings.TrimSpace(doc.Find(".alert-error").Text()))
	require.Nil(t, findCookie(resp, testutil.TokenCookie))
}

func TestLoginHonoursSafeNext(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	csrf := testutil.CSRFToken(t, client, ts, "/login?next=/orderhistory")

	resp := postForm(t, client, ts, "/login", csrf, url.Values{
		"phone": {testutil.AdminPhone}, "password": {"arnab"}, "next": {"/orderhistory"},
	})
	require.Equal(t, "/orderhistory", resp.Header.Get("Location"))

	resp = postForm(t, client, ts, "/login", csrf, url.Values{
		"phone": {testutil.AdminPhone}, "password": {"arnab"}, "next": {"//evil.example/phish"},
	})
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLogoutClearsCredentialImmediately(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))

	csrf := testutil.CSRFToken(t, client, ts, "/")
	resp := postForm(t, client, ts, "/logout", csrf, nil)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	cleared := findCookie(resp, testutil.TokenCookie)
	require.NotNil(t, cleared)
	require.Less(t, cleared.MaxAge, 0)
	_, ok := testutil.Cookie(t, client, ts, testutil.TokenCookie)
	require.False(t, ok)

	profile := get(t, client, ts, "/profile")
	require.Equal(t, http.StatusFound, profile.StatusCode)
	require.Zero(t, svc.CallsTo(backend.EndpointProfile))
}

func TestBackendUnauthorizedRevokesOnce(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	svc.Fail(backend.EndpointProfile, &backend.Error{Op: backend.EndpointProfile, Status: http.StatusUnauthorized, Message: "jwt expired"})
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))

	resp := get(t, client, ts, "/profile")

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "revoked", loc.Query().Get("reason"))
	require.Equal(t, 1, svc.CallsTo(backend.EndpointProfile))

	cleared := findCookie(resp, testutil.TokenCookie)
	require.NotNil(t, cleared)
	require.Less(t, cleared.MaxAge, 0)

	// Following the redirect lands on the login page with the notification; no second
	// privileged call happens.
	login := get(t, client, ts, resp.Header.Get("Location"))
	require.Equal(t, http.StatusOK, login.StatusCode)
	doc := testutil.ReadHTML(t, login.Body)
	require.Contains(t, doc.Find(".flash-error").Text(), "session has expired")
	require.Equal(t, 1, svc.CallsTo(backend.EndpointProfile))
}

func TestProfileRendersRecentOrdersAndMemberSince(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	token := testutil.UserToken(t, testutil.AdminPhone, "Arnab")
	testutil.SignIn(t, client, ts, token)

	first := get(t, client, ts, "/profile")
	require.Equal(t, http.StatusOK, first.StatusCode)
	doc := testutil.ReadHTML(t, first.Body)
	require.Equal(t, 2, doc.Find(".recent-orders .order").Length())
	require.Equal(t, "12 Jan 2024", strings.TrimSpace(doc.Find(".member-since").Text()))

	// Repeated reads of the stored credential yield the same identity.
	second := get(t, client, ts, "/profile")
	require.Equal(t, http.StatusOK, second.StatusCode)
	for _, call := range svc.Calls() {
		if call.Endpoint == backend.EndpointProfile {
			require.Equal(t, token, call.Token)
		}
	}
	require.Equal(t, 2, svc.CallsTo(backend.EndpointProfile))
}

func TestAddFoodValidatesBeforeBackendCall(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, testutil.AdminPhone, "Arnab"))
	csrf := testutil.CSRFToken(t, client, ts, "/addfood")

	tests := []struct {
		name    string
		fields  map[string]string
		image   bool
		message string
	}{
		{name: "empty title", fields: map[string]string{"title": "", "price": "150"}, image: true, message: "Please fill all fields"},
		{name: "missing image", fields: map[string]string{"title": "Veg Thali", "price": "150"}, message: "Please upload an image"},
		{name: "bad price", fields: map[string]string{"title": "Veg Thali", "price": "free"}, image: true, message: "Please enter a valid price"},
	}

	for _, tt := range tests {
		resp := postMultipart(t, client, ts, "/addfood", csrf, tt.fields, tt.image)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, tt.name)
		doc := testutil.ReadHTML(t, resp.Body)
		require.Equal(t, tt.message, strings.TrimSpace(doc.Find(".alert-error").Text()), tt.name)
	}
	require.Zero(t, svc.CallsTo(backend.EndpointCatalogCreate))

	resp := postMultipart(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150"}, true)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	require.Equal(t, 1, svc.CallsTo(backend.EndpointCatalogCreate))
	calls := svc.Calls()
	last := calls[len(calls)-1]
	require.Equal(t, "Veg Thali", last.Item.Title)
	require.Equal(t, "thali.png", last.Item.Image.Filename)
}

func TestAddFoodRequiresPassphraseWhenConfigured(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc), testutil.WithAdminPassphraseHash(string(hash)))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, testutil.AdminPhone, "Arnab"))
	csrf := testutil.CSRFToken(t, client, ts, "/addfood")

	resp := postMultipart(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150", "admin_passphrase": "guess"}, true)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.CallsTo(backend.EndpointCatalogCreate))

	resp = postMultipart(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150", "admin_passphrase": "open sesame"}, true)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, 1, svc.CallsTo(backend.EndpointCatalogCreate))
}

func TestCustomerCannotReachAdminPages(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))

	for _, path := range []string{"/addfood", "/allusersorders"} {
		resp := get(t, client, ts, path)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		doc := testutil.ReadHTML(t, resp.Body)
		require.Equal(t, "Access denied", strings.TrimSpace(doc.Find("h1").Text()), path)
	}
	require.Zero(t, svc.CallsTo(backend.EndpointUsersWithOrders))
}

func TestAdminWithRoleClaimSeesAllOrders(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	svc.AllUsers = []backend.UserOrders{
		{ID: "u1", Name: "Arnab", Phone: "7365075168", Address: "Kolkata", Orders: []backend.Order{{ID: "o1", Title: "Paneer Roll", Price: 120}}},
		{ID: "u2", Name: "Guest", Phone: "9000000000", Address: "Howrah"},
	}
	ts := testutil.NewServer(t, testutil.WithBackend(svc), testutil.WithAdminPhones())
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.MintToken(t, jwt.MapClaims{"phone": "8000000000", "role": "admin"}))

	resp := get(t, client, ts, "/allusersorders")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, 2, doc.Find("article.user-orders").Length())
	require.Equal(t, 1, doc.Find(`article[data-user-id="u1"] .order`).Length())
}

func TestCheckoutNavigatesToPaymentURL(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	token := testutil.UserToken(t, "9000000000", "Guest")
	testutil.SignIn(t, client, ts, token)

	product := get(t, client, ts, "/product?id=f1")
	require.Equal(t, http.StatusOK, product.StatusCode)
	doc := testutil.ReadHTML(t, product.Body)
	require.Equal(t, "Paneer Roll", strings.TrimSpace(doc.Find(".product h1").Text()))
	csrf, _ := doc.Find(`meta[name="csrf-token"]`).Attr("content")

	resp := postForm(t, client, ts, "/product/checkout", csrf, url.Values{"id": {"f1"}, "quantity": {"3"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, svc.PayURL, resp.Header.Get("Location"))

	calls := svc.Calls()
	payment := calls[len(calls)-1]
	require.Equal(t, backend.EndpointPayment, payment.Endpoint)
	require.Equal(t, token, payment.Token)
	require.Equal(t, "Paneer Roll", payment.Payment.Name)
	require.Equal(t, "f1", payment.Payment.OrderID)
	require.Equal(t, 360.0, payment.Payment.Amount)
}

func TestCheckoutHTMXUsesHXRedirect(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))
	csrf := testutil.CSRFToken(t, client, ts, "/")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/product/checkout", strings.NewReader(url.Values{"id": {"f2"}, "quantity": {"1"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set(testutil.CSRFHeader, csrf)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, svc.PayURL, resp.Header.Get("HX-Redirect"))
}

func TestCheckoutRejectsQuantityOutOfRange(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))
	csrf := testutil.CSRFToken(t, client, ts, "/")

	for _, qty := range []string{"0", "11", "two"} {
		resp := postForm(t, client, ts, "/product/checkout", csrf, url.Values{"id": {"f1"}, "quantity": {qty}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, qty)
	}
	require.Zero(t, svc.CallsTo(backend.EndpointPayment))
}

func TestCheckoutPaymentFailureShowsMessage(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	svc.Fail(backend.EndpointPayment, &backend.Error{Op: backend.EndpointPayment, Status: http.StatusBadRequest, Message: "Gateway unavailable"})
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))
	csrf := testutil.CSRFToken(t, client, ts, "/")

	resp := postForm(t, client, ts, "/product/checkout", csrf, url.Values{"id": {"f1"}, "quantity": {"2"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "Gateway unavailable", strings.TrimSpace(doc.Find(".alert-error").Text()))
	require.Equal(t, 1, svc.CallsTo(backend.EndpointPayment))
}

func TestProductUnknownIDRedirectsHome(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithBackend(seededBackend(t)))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))

	resp := get(t, client, ts, "/product?id=missing")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestCatalogSearchFragment(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithBackend(seededBackend(t)))
	client := testutil.NewClient(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/?q=dosa", nil)
	require.NoError(t, err)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "catalog-grid")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(body), "<html")
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, 1, doc.Find("article.card").Length())
	require.Equal(t, "Masala Dosa", strings.TrimSpace(doc.Find(".card-title").Text()))

	empty := testutil.ReadHTML(t, get(t, client, ts, "/?q=pizza").Body)
	require.Equal(t, "No items found", strings.TrimSpace(empty.Find(".empty h3").Text()))
}

func TestRegisterForwardsMultipart(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	csrf := testutil.CSRFToken(t, client, ts, "/register")

	resp := postMultipartFile(t, client, ts, "/register", csrf, map[string]string{
		"fullName": "Guest", "phone": "9000000000", "password": "secret", "user_address": "Howrah",
	}, "avatar", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.CallsTo(backend.EndpointRegister))

	resp = postMultipartFile(t, client, ts, "/register", csrf, map[string]string{
		"fullName": "Guest", "phone": "9000000000", "password": "secret", "user_address": "Howrah",
	}, "avatar", "me.jpg")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))
	require.Equal(t, "secret", svc.Accounts["9000000000"])
}

func TestStatusPagesAndOperationalEndpoints(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithBackend(seededBackend(t)))
	client := testutil.NewClient(t)

	resp := get(t, client, ts, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "Page not found", strings.TrimSpace(doc.Find("h1").Text()))

	failed := get(t, client, ts, "/faildpayment")
	require.Equal(t, http.StatusOK, failed.StatusCode)
	require.Equal(t, "Payment failed", strings.TrimSpace(testutil.ReadHTML(t, failed.Body).Find("h1").Text()))

	health := get(t, client, ts, "/healthz")
	require.Equal(t, http.StatusOK, health.StatusCode)

	// Drive one guard decision, then confirm it is exported.
	get(t, client, ts, "/orderhistory")
	metricsResp := get(t, client, ts, "/metrics")
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `storefront_guard_decisions_total{reason="missing_token",state="unauthenticated"}`)

	css := get(t, client, ts, "/static/app.css")
	require.Equal(t, http.StatusOK, css.StatusCode)
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)

	resp, err := client.PostForm(ts.URL+"/login", url.Values{"phone": {testutil.AdminPhone}, "password": {"arnab"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.CallsTo(backend.EndpointLogin))
}

func postMultipart(t *testing.T, client *http.Client, ts *httptest.Server, path, csrf string, fields map[string]string, withImage bool) *http.Response {
	t.Helper()

	filename := ""
	if withImage {
		filename = "thali.png"
	}
	return postMultipartFile(t, client, ts, path, csrf, fields, "pic_url_file", filename)
}

func postMultipartFile(t *testing.T, client *http.Client, ts *httptest.Server, path, csrf string, fields map[string]string, fileField, filename string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("csrf_token", csrf))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := client.Post(ts.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestOversizedUploadRendersFormError(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, testutil.AdminPhone, "Arnab"))
	csrf := testutil.CSRFToken(t, client, ts, "/addfood")

	// NewServer allows 1 MiB per request body.
	for _, size := range []int{3 << 20, 3 << 19} {
		resp := postSizedUpload(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150"}, "pic_url_file", size)
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, size)
		doc := testutil.ReadHTML(t, resp.Body)
		require.Equal(t, "The uploaded file is too large", strings.TrimSpace(doc.Find(".alert-error").Text()), size)
		require.Equal(t, 1, doc.Find(`form[action="/addfood"]`).Length(), size)
	}
	require.Zero(t, svc.CallsTo(backend.EndpointCatalogCreate))

	resp := postSizedUpload(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150"}, "pic_url_file", 256<<10)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, 1, svc.CallsTo(backend.EndpointCatalogCreate))
}

func TestOversizedRegistrationRendersFormError(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	csrf := testutil.CSRFToken(t, client, ts, "/register")

	resp := postSizedUpload(t, client, ts, "/register", csrf, map[string]string{
		"fullName": "Guest", "phone": "9000000000", "password": "secret", "user_address": "Howrah",
	}, "avatar", 2<<20)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "The uploaded file is too large", strings.TrimSpace(doc.Find(".alert-error").Text()))
	require.Zero(t, svc.CallsTo(backend.EndpointRegister))
}

func TestOversizedUploadWithoutCapabilityShowsStatusPage(t *testing.T) {
	t.Parallel()

	svc := seededBackend(t)
	ts := testutil.NewServer(t, testutil.WithBackend(svc))
	client := testutil.NewClient(t)
	testutil.SignIn(t, client, ts, testutil.UserToken(t, "9000000000", "Guest"))
	csrf := testutil.CSRFToken(t, client, ts, "/")

	resp := postSizedUpload(t, client, ts, "/addfood", csrf, map[string]string{"title": "Veg Thali", "price": "150"}, "pic_url_file", 2<<20)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	doc := testutil.ReadHTML(t, resp.Body)
	require.Equal(t, "Request too large", strings.TrimSpace(doc.Find("h1").Text()))
	require.Zero(t, doc.Find(`form[action="/addfood"]`).Length())
	require.Zero(t, svc.CallsTo(backend.EndpointCatalogCreate))
}

func postSizedUpload(t *testing.T, client *http.Client, ts *httptest.Server, path, csrf string, fields map[string]string, fileField string, size int) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("csrf_token", csrf))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile(fileField, "large.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := client.Post(ts.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
