package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "workforcehub"

var errMissingSecret = errors.New("identity: token secret is not configured")

// Tokens issues and verifies HS256 bearer tokens. A token only names the principal;
// roles are never embedded so that revocations apply on the next request.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens constructs a Tokens helper for the given signing secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// Issue signs a token for p valid for ttl.
func (t *Tokens) Issue(p Principal, ttl time.Duration) (string, time.Time, error) {
	if len(t.secret) == 0 {
		return "", time.Time{}, errMissingSecret
	}
	if p == uuid.Nil || p == systemPrincipal {
		return "", time.Time{}, errors.New("identity: cannot issue token for reserved principal")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("identity: ttl must be greater than zero")
	}
	now := t.now().UTC()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   p.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, expires, nil
}

// Resolve implements Resolver for the Authorization: Bearer header.
func (t *Tokens) Resolve(r *http.Request) (Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return uuid.Nil, ErrNoCredentials
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return uuid.Nil, fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}
	return t.Verify(strings.TrimSpace(raw))
}

// Verify validates a raw token and returns its subject.
func (t *Tokens) Verify(raw string) (Principal, error) {
	if len(t.secret) == 0 {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, errMissingSecret)
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	p, err := ParsePrincipal(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return p, nil
}
