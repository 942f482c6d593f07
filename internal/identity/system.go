package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// systemPrincipal is the identity background jobs act as. HTTP resolvers refuse it.
var systemPrincipal = uuid.MustParse("5f0f3a56-8a1e-4c9b-9d8e-000000000001")

type systemContextKey struct{}

// WithSystem marks ctx as running on behalf of the system principal. The reason is
// mandatory and ends up in the audit trail of every role load performed with ctx.
func WithSystem(ctx context.Context, reason string) (context.Context, Principal) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	return context.WithValue(ctx, systemContextKey{}, reason), systemPrincipal
}

// SystemReason reports why ctx runs as the system principal.
func SystemReason(ctx context.Context) (string, bool) {
	reason, ok := ctx.Value(systemContextKey{}).(string)
	return reason, ok
}

// IsSystem reports whether p is the system principal and ctx was explicitly marked
// for it via WithSystem. Both conditions must hold.
func IsSystem(ctx context.Context, p Principal) bool {
	if p != systemPrincipal {
		return false
	}
	_, ok := SystemReason(ctx)
	return ok
}
