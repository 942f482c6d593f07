package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// Resolver determines the principal behind a request. Implementations return either
// a principal they fully trust or an error wrapping ErrUnauthenticated.
type Resolver interface {
	Resolve(r *http.Request) (Principal, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(r *http.Request) (Principal, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(r *http.Request) (Principal, error) {
	return f(r)
}

// Chain consults every resolver and succeeds only when the sources that carry
// credentials agree on a single principal. A resolver reporting invalid (as opposed
// to absent) credentials fails the whole chain.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(r *http.Request) (Principal, error) {
	resolved := uuid.Nil
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		p, err := resolver.Resolve(r)
		if err != nil {
			if errors.Is(err, ErrNoCredentials) {
				continue
			}
			if !errors.Is(err, ErrUnauthenticated) {
				return uuid.Nil, errors.Join(ErrUnauthenticated, err)
			}
			return uuid.Nil, err
		}
		if p == uuid.Nil {
			return uuid.Nil, ErrUnauthenticated
		}
		if resolved != uuid.Nil && resolved != p {
			return uuid.Nil, ErrAmbiguousIdentity
		}
		resolved = p
	}
	if resolved == uuid.Nil {
		return uuid.Nil, ErrNoCredentials
	}
	return resolved, nil
}
