// Package identity resolves the authenticated principal behind an inbound request.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Principal is the opaque, stable identifier of an authenticated caller.
type Principal = uuid.UUID

var (
	// ErrUnauthenticated indicates that no trustworthy identity could be resolved.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrNoCredentials indicates that a resolver found nothing to inspect. It wraps
	// ErrUnauthenticated so callers that only care about the outcome can ignore it.
	ErrNoCredentials = fmt.Errorf("%w: no credentials", ErrUnauthenticated)
	// ErrAmbiguousIdentity is returned when two credential sources disagree.
	ErrAmbiguousIdentity = fmt.Errorf("%w: ambiguous identity", ErrUnauthenticated)
)

// ParsePrincipal validates a raw identifier taken from an external credential.
// The nil UUID and the system principal are never accepted.
func ParsePrincipal(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, ErrNoCredentials
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed principal", ErrUnauthenticated)
	}
	if id == uuid.Nil || id == systemPrincipal {
		return uuid.Nil, fmt.Errorf("%w: reserved principal", ErrUnauthenticated)
	}
	return id, nil
}
