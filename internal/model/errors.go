package model

import (
	"errors"
	"fmt"

	"github.com/erazemk/rezervator/internal/dates"
)

// Not-found sentinels. Wrap them with the missing id.
var (
	ErrItemNotFound       = errors.New("item not found")
	ErrCommitmentNotFound = errors.New("commitment not found")
)

// ValidationError reports bad input shape or range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DuplicateError reports a collision on a uniqueness rule.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: %q already exists", e.Field, e.Value)
}

// InsufficientCapacityError reports that a reservation does not fit.
type InsufficientCapacityError struct {
	ItemID       string
	Requested    int
	MinAvailable int
	Start        dates.Date
	End          dates.Date
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for item %s between %s and %s: requested %d, available %d",
		e.ItemID, e.Start, e.End, e.Requested, e.MinAvailable)
}

// HasFutureCommitmentsError blocks deleting an item that is still reserved.
type HasFutureCommitmentsError struct {
	ItemID string
	Count  int
}

func (e *HasFutureCommitmentsError) Error() string {
	return fmt.Sprintf("item %s has %d commitment(s) ending today or later", e.ItemID, e.Count)
}

// RateLimitError is returned once the backend quota is still exceeded after all
// retries. The caller should wait a minute or two before trying again.
type RateLimitError struct {
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts, retry in 1-2 minutes: %v", e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// BackendUnavailableError reports a network, auth or configuration failure of a
// storage backend. Hint tells an operator what to check.
type BackendUnavailableError struct {
	Backend string
	Hint    string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	msg := fmt.Sprintf("%s backend unavailable", e.Backend)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a *BackendUnavailableError.
func Unavailable(backend, hint string, err error) error {
	return &BackendUnavailableError{Backend: backend, Hint: hint, Err: err}
}

// ConfigError reports missing or invalid backend configuration.
type ConfigError struct {
	Key  string
	Hint string
}

func (e *ConfigError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("configuration %s is missing or invalid", e.Key)
	}
	return fmt.Sprintf("configuration %s is missing or invalid: %s", e.Key, e.Hint)
}

// Remedy is what a user should do about an error.
type Remedy int

const (
	// RemedyNone means the error is internal or unknown.
	RemedyNone Remedy = iota
	// RemedyFixInput means the request itself was rejected.
	RemedyFixInput
	// RemedyRetryLater means the resource is busy.
	RemedyRetryLater
	// RemedyCheckConfig means the system is unreachable or misconfigured.
	RemedyCheckConfig
)

func (r Remedy) String() string {
	switch r {
	case RemedyFixInput:
		return "fix_input"
	case RemedyRetryLater:
		return "retry_later"
	case RemedyCheckConfig:
		return "check_configuration"
	default:
		return "none"
	}
}

// RemedyFor classifies err into one of the user-facing remediation paths.
func RemedyFor(err error) Remedy {
	var (
		validation  *ValidationError
		duplicate   *DuplicateError
		capacity    *InsufficientCapacityError
		future      *HasFutureCommitmentsError
		rateLimit   *RateLimitError
		unavailable *BackendUnavailableError
		config      *ConfigError
	)
	switch {
	case err == nil:
		return RemedyNone
	case errors.As(err, &rateLimit):
		return RemedyRetryLater
	case errors.As(err, &unavailable), errors.As(err, &config):
		return RemedyCheckConfig
	case errors.As(err, &validation), errors.As(err, &duplicate),
		errors.As(err, &capacity), errors.As(err, &future),
		errors.Is(err, ErrItemNotFound), errors.Is(err, ErrCommitmentNotFound):
		return RemedyFixInput
	}
	return RemedyNone
}

// IsNotFound reports whether err is an item or commitment not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrCommitmentNotFound)
}
