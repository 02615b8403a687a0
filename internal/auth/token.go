// Package auth issues and verifies bearer tokens, hashes passwords and
// guards routes by role.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

const issuer = "themehub"

// Claims carried by every token.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID is the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

// Tokens signs and verifies HS256 tokens with one shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret []byte, ttl time.Duration) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, xerrors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, xerrors.Newf("token ttl must be positive, got %s", ttl)
	}
	return &Tokens{secret: append([]byte(nil), secret...), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for u.
func (t *Tokens) Issue(u records.User) (string, error) {
	now := t.now()
	claims := Claims{
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses a token, with or without a "Bearer " prefix. Any failure
// is KindUnauthorized.
func (t *Tokens) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, xerrors.Unauthorized("authorization token is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, xerrors.WithKind(xerrors.Wrap(err, "invalid token"), xerrors.KindUnauthorized)
	}
	if claims.Email == "" || claims.Role == "" {
		return nil, xerrors.Unauthorized("invalid token")
	}
	return claims, nil
}
