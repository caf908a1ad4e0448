package rbac

import (
	"strings"
)

// Role represents a storefront access tier.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Capability represents a discrete feature gate checked by the route guard and templates.
type Capability string

const (
	CapCatalogBrowse Capability = "catalog.browse"
	CapCheckout      Capability = "checkout"
	CapOrdersOwn     Capability = "orders.own"
	CapProfileSelf   Capability = "profile.self"
	CapCatalogManage Capability = "catalog.manage"
	CapOrdersAll     Capability = "orders.all"
)

// capabilityRoles maps each capability to the roles permitted to access it.
var capabilityRoles = map[Capability]Roles{
	CapCatalogBrowse: {RoleCustomer, RoleAdmin},
	CapCheckout:      {RoleCustomer, RoleAdmin},
	CapOrdersOwn:     {RoleCustomer, RoleAdmin},
	CapProfileSelf:   {RoleCustomer, RoleAdmin},
	CapCatalogManage: {RoleAdmin},
	CapOrdersAll:     {RoleAdmin},
}

// Roles captures a list of roles and exposes intersection checks used for RBAC evaluation.
type Roles []Role

// Has returns true if the provided role exists in the set.
func (rs Roles) Has(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// Intersects returns true if any role in the candidate slice is also present in the set.
func (rs Roles) Intersects(candidate Roles) bool {
	for _, role := range candidate {
		if rs.Has(role) {
			return true
		}
	}
	return false
}

// NormaliseRoles converts raw role strings into canonical Role values.
func NormaliseRoles(raw []string) Roles {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[Role]struct{}, len(raw))
	roles := make(Roles, 0, len(raw))
	for _, val := range raw {
		role := Role(strings.ToLower(strings.TrimSpace(val)))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// HasCapability reports whether the provided roles grant access to the capability.
// Admin users implicitly possess every capability.
func HasCapability(userRoles []string, capability Capability) bool {
	if capability == "" {
		return true
	}
	allowed, ok := capabilityRoles[capability]
	if !ok {
		return false
	}
	roles := NormaliseRoles(userRoles)
	if roles.Has(RoleAdmin) {
		return true
	}
	return allowed.Intersects(roles)
}

// CapabilitiesForRoles enumerates the capabilities accessible to the provided user roles.
func CapabilitiesForRoles(userRoles []string) map[Capability]bool {
	caps := make(map[Capability]bool, len(capabilityRoles))
	for capability := range capabilityRoles {
		if HasCapability(userRoles, capability) {
			caps[capability] = true
		}
	}
	return caps
}

// Resolver derives roles for an authenticated phone number. Token role claims are merged
// with the configured admin phone list; every authenticated user is at least a customer.
type Resolver struct {
	adminPhones map[string]struct{}
}

// NewResolver builds a Resolver from the configured admin phone numbers.
func NewResolver(adminPhones []string) *Resolver {
	set := make(map[string]struct{}, len(adminPhones))
	for _, phone := range adminPhones {
		if p := strings.TrimSpace(phone); p != "" {
			set[p] = struct{}{}
		}
	}
	return &Resolver{adminPhones: set}
}

// Resolve returns the canonical role names for the identity.
func (r *Resolver) Resolve(phone string, claimed []string) []string {
	roles := NormaliseRoles(append([]string{string(RoleCustomer)}, claimed...))
	if r != nil {
		if _, ok := r.adminPhones[strings.TrimSpace(phone)]; ok && !roles.Has(RoleAdmin) {
			roles = append(roles, RoleAdmin)
		}
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
