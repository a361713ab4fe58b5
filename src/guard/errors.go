package guard

import "errors"

var (
	// ErrNotFound means no pending verification exists for the token or member.
	ErrNotFound = errors.New("guard: not found")
	// ErrMismatch means a token resolved to a different group or user than the caller.
	ErrMismatch = errors.New("guard: verification mismatch")
	// ErrInvalidRule means a keyword rule was rejected at creation time.
	ErrInvalidRule = errors.New("guard: invalid keyword rule")
	// ErrStoreUnavailable wraps every store failure other than not-found.
	ErrStoreUnavailable = errors.New("guard: store unavailable")
	// ErrPlatformUnavailable wraps messaging platform failures.
	ErrPlatformUnavailable = errors.New("guard: platform unavailable")
)

// StoreError records the store operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// PlatformError records the platform call that failed.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string { return "platform " + e.Op + ": " + e.Err.Error() }

func (e *PlatformError) Unwrap() []error { return []error{ErrPlatformUnavailable, e.Err} }

// RuleError carries a user-facing validation message for a rejected rule.
type RuleError struct {
	Reason string
}

func (e *RuleError) Error() string { return e.Reason }

func (e *RuleError) Unwrap() error { return ErrInvalidRule }
