package tenancy

import (
	"errors"
	"fmt"
)

// Taxonomy kinds. Every error returned by the manager for a tenant operation
// matches exactly one of these via errors.Is.
var (
	// ErrConfiguration is returned for invalid or duplicate configuration. Never retried.
	ErrConfiguration = errors.New("invalid tenancy configuration")

	// ErrTenantNotFound is returned when a resolution or switch targets a tenant that does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantAlreadyExists is returned when creating a tenant whose isolation unit already exists.
	ErrTenantAlreadyExists = errors.New("tenant already exists")

	// ErrFileNotFound is returned when an auxiliary file (tenant list, seed data) is missing.
	ErrFileNotFound = errors.New("file not found")
)

var (
	ErrAlreadyConfigured   = errors.New("tenancy is already configured")
	ErrNotConfigured       = errors.New("tenancy is not configured")
	ErrNoStrategy          = errors.New("no isolation strategy configured")
	ErrUnknownStrategy     = errors.New("unknown isolation strategy")
	ErrNoTenantsProvider   = errors.New("tenants provider is required")
	ErrEmptyTenant         = errors.New("tenant name is empty")
	ErrUnknownOwner        = errors.New("unknown connection owner")
	ErrNilAdapter          = errors.New("adapter is required")
	ErrInvalidTenantsData  = errors.New("invalid tenants data")
	ErrNoTenantContext     = errors.New("no tenant context attached to context")
	ErrRegistryClosed      = errors.New("pool registry is closed")
	ErrRestoreFailed       = errors.New("failed to restore previous tenant")
	ErrClosePool           = errors.New("failed to close pool")
	ErrCreateHookFailed    = errors.New("tenant create hook failed")
	ErrMismatchedHookType  = errors.New("create hook pool type does not match adapter")
	ErrInvalidDatabaseName = errors.New("database name format must contain exactly one %s verb")
)

// Error describes a failed tenant operation. Kind is one of the taxonomy
// sentinels above and Err is the underlying cause.
type Error struct {
	Op     string
	Tenant string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	var msg string
	if e.Tenant != "" {
		msg = fmt.Sprintf("%s %q: %v", e.Op, e.Tenant, e.Kind)
	} else {
		msg = fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op, tenant string, kind, err error) *Error {
	return &Error{Op: op, Tenant: tenant, Kind: kind, Err: err}
}

// IsTenantNotFound reports whether err carries the TenantNotFound kind.
func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

// IsTenantAlreadyExists reports whether err carries the TenantAlreadyExists kind.
func IsTenantAlreadyExists(err error) bool {
	return errors.Is(err, ErrTenantAlreadyExists)
}

// IsConfigurationError reports whether err carries the Configuration kind.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// translate maps an adapter error onto the taxonomy. Errors the adapter
// declares rescuable become kind; taxonomy kinds the adapter already returned
// are kept; everything else propagates unchanged.
func translate(op, tenant string, kind, err error, rescuable []error) error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return err
	}

	for _, k := range []error{ErrTenantNotFound, ErrTenantAlreadyExists, ErrFileNotFound} {
		if errors.Is(err, k) {
			return newError(op, tenant, k, err)
		}
	}

	if isRescuable(err, rescuable) {
		return newError(op, tenant, kind, err)
	}

	return err
}

func isRescuable(err error, rescuable []error) bool {
	for _, r := range rescuable {
		if r != nil && errors.Is(err, r) {
			return true
		}
	}
	return false
}
