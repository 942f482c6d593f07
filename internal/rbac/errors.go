package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrUnknownPermission indicates a permission outside the catalog.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrUnknownRole indicates a role name outside the role catalog.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrMalformedPermission indicates an unparsable permission string.
	ErrMalformedPermission = errors.New("rbac: malformed permission")
	// ErrStoreUnavailable indicates that no role fact source could be reached.
	ErrStoreUnavailable = errors.New("rbac: role store unavailable")
	// ErrForbidden indicates an authorization denial.
	ErrForbidden = errors.New("rbac: forbidden")
)

// ConfigurationError signals a defect in permission or role definitions. It is never
// an authorization outcome and must never be treated as an allow.
type ConfigurationError struct {
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rbac: configuration error: %s: %v", e.Subject, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
