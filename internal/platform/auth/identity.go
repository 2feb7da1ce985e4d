package auth

import (
	"context"
	"strings"

	domain "github.com/loomhouse/api/internal/domain"
)

// Roles recognised by the order API.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the verified caller behind a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity carries role, case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries any of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsOperator reports whether the identity may manage fulfillment.
func (i *Identity) IsOperator() bool {
	return i.HasAnyRole(RoleStaff, RoleAdmin)
}

// Account returns the account the identity shops as.
func (i *Identity) Account() domain.AccountRef {
	if i == nil {
		return domain.GuestAccount()
	}
	return domain.AccountFor(i.UID)
}

type identityKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity installed by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
