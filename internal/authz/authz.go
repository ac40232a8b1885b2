// Package authz authenticates dashboard users against the OIDC issuer and
// authorizes property-scoped requests by role. The property is always named
// explicitly via the property_id query parameter; nothing is inferred from
// the token.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Roles in ascending privilege order.
const (
	RoleViewer     = "viewer"
	RoleGovernance = "governance"
	RoleStaff      = "staff"
	RoleManager    = "manager"
	RoleOwner      = "owner"
)

var roleLevels = map[string]int{
	RoleViewer:     0,
	RoleGovernance: 1,
	RoleStaff:      2,
	RoleManager:    3,
	RoleOwner:      4,
}

// ValidRole reports whether role is one of the known role names.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// RoleAtLeast compares role privilege levels; unknown roles never qualify.
func RoleAtLeast(role, minimum string) bool {
	have, ok := roleLevels[role]
	if !ok {
		return false
	}
	want, ok := roleLevels[minimum]
	if !ok {
		return false
	}
	return have >= want
}

// ErrLastOwner guards against orphaning a property with zero owners.
var ErrLastOwner = errors.New("last_owner")

// ErrNoRole means the user carries no role on the requested property.
var ErrNoRole = errors.New("no_role_on_property")

// Principal is the authenticated caller within one request.
type Principal struct {
	UserID     string
	Sub        string
	Email      string
	Name       string
	PropertyID string
	Role       string
}

type principalKey struct{}

// PrincipalFrom returns the request principal placed by Middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// WithPrincipal is exported for handler tests.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticator verifies dashboard bearer tokens and resolves users.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	pool     *pgxpool.Pool
}

func NewAuthenticator(ctx context.Context, issuerURL, clientID string, pool *pgxpool.Pool) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("authz: oidc provider: %w", err)
	}
	return &Authenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		pool:     pool,
	}, nil
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Authenticate verifies the bearer token and upserts the user row keyed on
// the token subject. First sight of a subject creates the user with no
// roles; an owner grants access later through the RBAC API.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return nil, fmt.Errorf("authz: missing bearer token")
	}
	token, err := a.verifier.Verify(r.Context(), raw)
	if err != nil {
		return nil, fmt.Errorf("authz: token verify: %w", err)
	}
	var c claims
	if err := token.Claims(&c); err != nil {
		return nil, fmt.Errorf("authz: claims: %w", err)
	}

	var userID string
	err = a.pool.QueryRow(r.Context(), `
		INSERT INTO users (id, oidc_sub, email, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (oidc_sub) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
		RETURNING id`,
		"usr_"+uuid.NewString(), token.Subject, c.Email, c.Name).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("authz: upsert user: %w", err)
	}
	return &Principal{UserID: userID, Sub: token.Subject, Email: c.Email, Name: c.Name}, nil
}

// RoleOn loads the caller's role for one property.
func (a *Authenticator) RoleOn(ctx context.Context, userID, propertyID string) (string, error) {
	var role string
	err := a.pool.QueryRow(ctx, `
		SELECT role FROM user_property_roles
		WHERE user_id = $1 AND property_id = $2`,
		userID, propertyID).Scan(&role)
	if store.IsNoRows(err) {
		return "", ErrNoRole
	}
	if err != nil {
		return "", fmt.Errorf("authz: load role: %w", err)
	}
	return role, nil
}

// Middleware authenticates the request and, for property-scoped routes,
// asserts the caller holds at least minRole on the property named in the
// query string. 401 on authentication failure, 403 on authorization
// failure, 400 when property_id is absent.
func (a *Authenticator) Middleware(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.Authenticate(r)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("authentication failed")
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			propertyID := r.URL.Query().Get("property_id")
			if propertyID == "" {
				writeAuthError(w, http.StatusBadRequest, "property_id_required")
				return
			}
			role, err := a.RoleOn(r.Context(), principal.UserID, propertyID)
			if err != nil && !errors.Is(err, ErrNoRole) {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("role lookup failed")
				writeAuthError(w, http.StatusInternalServerError, "internal")
				return
			}
			if errors.Is(err, ErrNoRole) || !RoleAtLeast(role, minRole) {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			principal.PropertyID = propertyID
			principal.Role = role
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// AuthenticateOnly is for endpoints like /me that need identity but no
// property scope.
func (a *Authenticator) AuthenticateOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Authenticate(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, code, code)
}
