package identity

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/workforcehub/workforcehub/internal/shared"
)

// SessionResolver reads the principal stored in the cookie session loaded by the
// session middleware.
type SessionResolver struct{}

// Resolve implements Resolver.
func (SessionResolver) Resolve(r *http.Request) (Principal, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, ErrNoCredentials
	}
	return ParsePrincipal(sess.User())
}
