package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminPhone is configured as an administrator by NewServer.
const AdminPhone = "7365075168"

// MintToken signs claims with a throwaway key. The storefront never verifies signatures, so
// any key works.
func MintToken(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-only-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// UserToken mints a token for phone that expires in a day.
func UserToken(t testing.TB, phone, name string) string {
	t.Helper()

	return MintToken(t, jwt.MapClaims{
		"name":    name,
		"phone":   phone,
		"img_url": "https://cdn.example/" + phone + ".png",
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
}
