package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/loomhouse/api/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrUnauthenticated means the action needs a verified caller and none was presented.
	ErrUnauthenticated = errors.New("auth: authentication required")
	// ErrForbidden means the caller lacks the role the action needs.
	ErrForbidden = errors.New("auth: insufficient role")
	// ErrTokenInvalid means the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator attaches verified identities to requests.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim holding roles.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// NewAuthenticator builds an Authenticator around verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Middleware verifies a bearer token when one is sent. Anonymous requests pass through without
// an identity; a bad token is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if strings.TrimSpace(raw) == "" || a == nil || a.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := a.Identify(r.Context(), raw)
		if err != nil {
			code := "invalid_token"
			if firebaseauth.IsIDTokenExpired(err) {
				code = "token_expired"
			}
			httpx.WriteError(r.Context(), w, httpx.NewError(code, "firebase id token rejected", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Identify verifies an Authorization header value and maps its claims to an Identity.
func (a *Authenticator) Identify(ctx context.Context, header string) (*Identity, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrTokenInvalid
	}
	verified, err := a.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}
	identity := &Identity{
		UID:   verified.UID,
		Email: stringClaim(verified.Claims, "email"),
		Roles: rolesFromClaims(verified.Claims, a.roleClaim),
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleUser}
	}
	return identity, nil
}

// RequireRole checks the identity on ctx against roles.
func RequireRole(ctx context.Context, roles ...string) (*Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !identity.HasAnyRole(roles...) {
		return identity, ErrForbidden
	}
	return identity, nil
}

func rolesFromClaims(claims map[string]any, key string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	switch v := claims[key].(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				add(role)
			}
		}
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
