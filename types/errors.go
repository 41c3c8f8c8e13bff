package types

import (
	"errors"
	"fmt"
)

// FetchError is a network or HTTP-level failure.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed listing or item.
type ParseError struct {
	Source string
	Item   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("parse %s (%s): %v", e.Source, e.Item, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// QuotaExceededError is returned when a provider has signalled quota exhaustion
// for the current day. It is terminal for the remainder of a run.
type QuotaExceededError struct {
	Provider string
	Day      string
}

func (e *QuotaExceededError) Error() string {
	if e.Day != "" {
		return fmt.Sprintf("quota exceeded for %s on %s", e.Provider, e.Day)
	}
	return fmt.Sprintf("quota exceeded for %s", e.Provider)
}

// ValidationError reports a missing or invalid required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsQuotaExceeded reports whether err carries a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsFetchError reports whether err carries a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
