package auth

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/respond"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// UserLookup finds the account behind a token.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (records.User, error)
}

type claimsKey struct{}
type userKey struct{}

// ClaimsFromContext returns the verified claims of the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// UserFromContext returns the account loaded by RequireAdmin.
func UserFromContext(ctx context.Context) (records.User, bool) {
	u, ok := ctx.Value(userKey{}).(records.User)
	return u, ok
}

// WithClaims stores c in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// IsAdminRole matches every spelling of the admin roles the dashboard uses.
func IsAdminRole(role string) bool {
	return strings.Contains(strings.ToLower(role), records.RoleAdmin)
}

// Guard builds route middleware from a token verifier and the user store.
type Guard struct {
	tokens *Tokens
	users  UserLookup
}

func NewGuard(tokens *Tokens, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// RequireRoles admits requests whose token role is one of roles, compared
// case-insensitively.
func (g *Guard) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := g.authenticate(w, r)
			if !ok {
				return
			}
			if !roleIn(claims.Role, roles) {
				respond.Error(w, r, xerrors.Forbidden("role %q may not access this resource", claims.Role))
				return
			}
			next.ServeHTTP(w, r.WithContext(g.annotate(r.Context(), claims)))
		})
	}
}

// RequireAdmin admits tokens with an admin role whose account still exists
// and is active. The account is stored in the request context.
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := g.authenticate(w, r)
			if !ok {
				return
			}
			if !IsAdminRole(claims.Role) {
				respond.Error(w, r, xerrors.Unauthorized("invalid token"))
				return
			}
			ctx := r.Context()
			u, err := g.users.UserByEmail(ctx, claims.Email)
			switch {
			case xerrors.Is(err, xerrors.KindNotFound):
				respond.Error(w, r, xerrors.Unauthorized("admin not found"))
				return
			case err != nil:
				respond.Error(w, r, xerrors.Wrap(err, "load admin"))
				return
			case !u.Active():
				respond.Error(w, r, xerrors.Forbidden("account is not active"))
				return
			}
			ctx = context.WithValue(g.annotate(ctx, claims), userKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	claims, err := g.tokens.Verify(r.Header.Get("Authorization"))
	if err != nil {
		respond.Error(w, r, err)
		return nil, false
	}
	return claims, true
}

// annotate stores claims and tags the logger and span with the caller.
func (g *Guard) annotate(ctx context.Context, c *Claims) context.Context {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.String("enduser.id", c.UserID()), attribute.String("enduser.role", c.Role))
	}
	ctx = log.WithContext(ctx, log.FromContext(ctx).With("user_id", c.UserID(), "user_role", c.Role))
	return WithClaims(ctx, c)
}

func roleIn(role string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(role, a) {
			return true
		}
	}
	return false
}
