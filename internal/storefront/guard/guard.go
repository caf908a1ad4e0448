// Package guard decides whether a request may enter an identity-requiring page.
//
// Each request gets a Session that starts Unchecked and moves to Authenticated or
// Unauthenticated after Check. A backend "unauthorized" answer forces Unauthenticated
// through Revoke regardless of the client-side decision, which is only a fast path.
package guard

import (
	"errors"
	"sync"
	"time"

	"uemfood.app/storefront/internal/storefront/identity"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
)

// State is a route guard state.
type State int

const (
	Unchecked State = iota
	Authenticated
	Unauthenticated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unchecked"
	}
}

const (
	ReasonMissingToken = "missing_token"
	ReasonTokenInvalid = identity.ReasonTokenInvalid
	ReasonMissingClaim = identity.ReasonMissingClaim
	ReasonTokenExpired = "token_expired"
	ReasonRevoked      = "revoked"
	ReasonLoggedOut    = "logged_out"
)

// Observer receives guard transitions, typically for metrics.
type Observer interface {
	ObserveGuard(state, reason string)
}

// Options configures a Guard.
type Options struct {
	Decoder   identity.Decoder
	TokenName string
	Roles     *rbac.Resolver
	Now       func() time.Time
	Observer  Observer
}

// Guard evaluates the credential held in a session store.
type Guard struct {
	decoder   identity.Decoder
	tokenName string
	roles     *rbac.Resolver
	now       func() time.Time
	observer  Observer
}

// New constructs a Guard. The token name defaults to "authToken".
func New(opts Options) *Guard {
	g := &Guard{
		decoder:   opts.Decoder,
		tokenName: opts.TokenName,
		roles:     opts.Roles,
		now:       opts.Now,
		observer:  opts.Observer,
	}
	if g.decoder == nil {
		g.decoder = identity.NewJWTDecoder()
	}
	if g.tokenName == "" {
		g.tokenName = "authToken"
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// TokenName returns the store key holding the credential.
func (g *Guard) TokenName() string {
	return g.tokenName
}

// Check reads the credential from store and returns the evaluated Session.
func (g *Guard) Check(store session.Store) *Session {
	s := &Session{guard: g, store: store}

	var token string
	var ok bool
	if store != nil {
		token, ok = store.Get(g.tokenName)
	}
	if !ok || token == "" {
		s.transition(Unauthenticated, ReasonMissingToken)
		return s
	}

	ident, err := g.decoder.Decode(token)
	if err != nil {
		reason := ReasonTokenInvalid
		var decodeErr *identity.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Reason != "" {
			reason = decodeErr.Reason
		}
		s.transition(Unauthenticated, reason)
		return s
	}
	if ident.Phone == "" {
		s.transition(Unauthenticated, ReasonMissingClaim)
		return s
	}
	if ident.Expired(g.now()) {
		s.transition(Unauthenticated, ReasonTokenExpired)
		return s
	}

	s.mu.Lock()
	s.identity = ident
	s.token = token
	s.roles = g.roles.Resolve(ident.Phone, ident.Roles)
	s.mu.Unlock()
	s.transition(Authenticated, "")
	return s
}

// Session is the per-request guard state machine.
type Session struct {
	guard *Guard
	store session.Store

	mu       sync.Mutex
	state    State
	reason   string
	identity identity.Identity
	roles    []string
	token    string
}

// State returns the current state.
func (s *Session) State() State {
	if s == nil {
		return Unchecked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason explains the most recent transition to Unauthenticated.
func (s *Session) Reason() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Authenticated reports whether the session currently holds a usable credential.
func (s *Session) Authenticated() bool {
	return s.State() == Authenticated
}

// Identity returns the decoded display identity; zero when not authenticated.
func (s *Session) Identity() identity.Identity {
	if s == nil {
		return identity.Identity{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return identity.Identity{}
	}
	return s.identity
}

// Token returns the raw credential to attach to backend calls.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return ""
	}
	return s.token
}

// Roles returns the resolved role names.
func (s *Session) Roles() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return nil
	}
	return append([]string(nil), s.roles...)
}

// Allows reports whether the authenticated identity holds the capability.
func (s *Session) Allows(capability rbac.Capability) bool {
	if !s.Authenticated() {
		return false
	}
	return rbac.HasCapability(s.Roles(), capability)
}

// Revoke forces the session to Unauthenticated and clears the stored credential. It returns
// true only for the call that performed the transition, so callers navigate to login once.
func (s *Session) Revoke(reason string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	if s.state == Unauthenticated {
		s.mu.Unlock()
		return false
	}
	s.setLocked(Unauthenticated, reason)
	s.mu.Unlock()

	if s.store != nil && s.guard != nil {
		s.store.Clear(s.guard.tokenName)
	}
	s.observe(Unauthenticated, reason)
	return true
}

func (s *Session) transition(state State, reason string) {
	s.mu.Lock()
	s.setLocked(state, reason)
	s.mu.Unlock()
	s.observe(state, reason)
}

func (s *Session) setLocked(state State, reason string) {
	s.state = state
	s.reason = reason
	if state == Unauthenticated {
		s.identity = identity.Identity{}
		s.token = ""
		s.roles = nil
	}
}

func (s *Session) observe(state State, reason string) {
	if s.guard != nil && s.guard.observer != nil {
		s.guard.observer.ObserveGuard(state.String(), reason)
	}
}
