// Package identity extracts display details from a session token for rendering only.
// Signatures are never verified here; the backend re-validates the raw token on every
// privileged call.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ReasonTokenInvalid indicates the token is not a structurally valid JWT.
	ReasonTokenInvalid = "token_invalid"
	// ReasonMissingClaim indicates the token lacks the identifying phone claim.
	ReasonMissingClaim = "missing_claim"
)

// ErrMalformed is wrapped by DecodeError when the token cannot be parsed.
var ErrMalformed = errors.New("identity: malformed token")

// ErrMissingClaim is wrapped by DecodeError when a required claim is absent.
var ErrMissingClaim = errors.New("identity: missing required claim")

// DecodeError describes why a token could not be projected into an Identity.
type DecodeError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Identity is the display projection of a token's claims.
type Identity struct {
	DisplayName string
	Phone       string
	AvatarURL   string
	Roles       []string
	ExpiresAt   time.Time
}

// Expired reports whether the token carried an expiry that has passed at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Decoder turns raw tokens into identities.
type Decoder interface {
	Decode(token string) (Identity, error)
}

// JWTDecoder decodes the payload of a JWT without checking its signature.
type JWTDecoder struct {
	parser *jwt.Parser
}

// NewJWTDecoder constructs a JWTDecoder.
func NewJWTDecoder() *JWTDecoder {
	return &JWTDecoder{parser: jwt.NewParser(jwt.WithJSONNumber())}
}

// Decode implements Decoder.
func (d *JWTDecoder) Decode(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, &DecodeError{Reason: ReasonTokenInvalid, Err: ErrMalformed}
	}

	claims := jwt.MapClaims{}
	// A missing or unknown alg only matters for verification; the claims are decoded by then.
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return Identity{}, &DecodeError{Reason: ReasonTokenInvalid, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	phone := claimString(claims["phone"])
	if phone == "" {
		return Identity{}, &DecodeError{Reason: ReasonMissingClaim, Err: fmt.Errorf("%w: phone", ErrMissingClaim)}
	}

	ident := Identity{
		DisplayName: claimString(claims["name"]),
		Phone:       phone,
		AvatarURL:   firstNonEmpty(claimString(claims["img_url"]), claimString(claims["imageURL"]), claimString(claims["avatar"])),
		Roles:       claimStringSlice(claims["role"], claims["roles"]),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ident.ExpiresAt = exp.Time.UTC()
	}
	return ident, nil
}

func claimString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func claimStringSlice(values ...any) []string {
	seen := make(map[string]struct{})
	var result []string

	appendValue := func(val string) {
		val = strings.TrimSpace(val)
		if val == "" {
			return
		}
		if _, ok := seen[val]; ok {
			return
		}
		seen[val] = struct{}{}
		result = append(result, val)
	}

	for _, value := range values {
		switch v := value.(type) {
		case string:
			for _, part := range strings.Split(v, ",") {
				appendValue(part)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					appendValue(s)
				}
			}
		case []string:
			for _, item := range v {
				appendValue(item)
			}
		}
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
