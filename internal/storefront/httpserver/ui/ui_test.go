package ui

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"uemfood.app/storefront/internal/storefront/backend"
)

func TestSanitizeNext(t *testing.T) {
	t.Parallel()

	h := New(Config{})
	tests := map[string]string{
		"":                     "",
		"/orderhistory":        "/orderhistory",
		"/product?id=f1":       "/product?id=f1",
		"/a/../profile":        "/profile",
		"https://evil.example": "",
		"//evil.example/x":     "",
		"/%5Cevil":             "",
		"relative":             "",
		"/login":               "",
		"/logout":              "",
	}
	for in, want := range tests {
		require.Equal(t, want, h.sanitizeNext(in), in)
	}
}

func TestFilterCatalog(t *testing.T) {
	t.Parallel()

	items := []backend.FoodItem{
		{ID: "f1", Title: "Paneer Roll"},
		{ID: "f2", Title: "Masala Dosa"},
		{ID: "f3", Title: "Paneer Tikka"},
	}

	require.Len(t, FilterCatalog(items, ""), 3)
	require.Len(t, FilterCatalog(items, "  PANEER "), 2)
	require.Empty(t, FilterCatalog(items, "pizza"))

	found := FindItem(items, "f2")
	require.NotNil(t, found)
	require.Equal(t, "Masala Dosa", found.Title)
	require.Nil(t, FindItem(items, "missing"))
}

func TestBackendStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, backendStatus(&backend.Error{Status: http.StatusOK, Message: "status false"}))
	require.Equal(t, http.StatusBadRequest, backendStatus(fmt.Errorf("wrap: %w", &backend.Error{Status: http.StatusConflict})))
	require.Equal(t, http.StatusBadGateway, backendStatus(&backend.Error{Status: http.StatusServiceUnavailable}))
	require.Equal(t, http.StatusBadGateway, backendStatus(errors.New("dial tcp: refused")))
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	h := New(Config{})
	require.Equal(t, "authToken", h.tokenName)
	require.Equal(t, defaultTokenTTL, h.tokenTTL)
	require.Equal(t, "/login", h.loginPath)
	require.Nil(t, h.passphraseHash)
}
