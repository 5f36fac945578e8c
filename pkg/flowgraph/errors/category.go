// Package errors categorizes collaborator failures.
//
// Nodes contain their own failures, so a category never drives control flow
// inside the engine. It is recorded on trace entries and logs so operators
// can tell a flaky upstream from a misconfiguration or malformed output:
//   - Transient: the same call may succeed later (rate limits, 5xx, timeouts)
//   - Permanent: the call cannot succeed as configured (auth, 4xx, unknown)
//   - Malformed: the call succeeded but its output was unusable
//   - Canceled: the caller gave up
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category describes the kind of failure behind an error.
type Category int

const (
	// CategoryTransient indicates the failure is likely temporary.
	// Examples: rate limits, timeouts, temporary network issues.
	CategoryTransient Category = iota

	// CategoryPermanent indicates the failure will repeat.
	// Examples: authentication failures, invalid configuration.
	CategoryPermanent

	// CategoryMalformed indicates a response that could not be used.
	// Examples: JSON parse failures, missing required fields.
	CategoryMalformed

	// CategoryCanceled indicates the caller's context ended the call.
	CategoryCanceled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryMalformed:
		return "malformed"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates what kind of failure this is.
	Category Category

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s)", e.Context, e.Err, e.Category)
	}
	return fmt.Sprintf("%s (category: %s)", e.Err, e.Category)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Malformed creates a malformed-output error.
func Malformed(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryMalformed, context)
}

// Categorize determines what kind of failure an error represents.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Check for already-categorized errors
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	// Check for HTTP errors
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 408, 429, 503, 504:
			return CategoryTransient
		case 401, 403:
			return CategoryPermanent
		default:
			if httpErr.StatusCode >= 500 {
				return CategoryTransient // server errors are often transient
			}
			return CategoryPermanent
		}
	}

	// Check for JSON parse errors
	var jsonErr *JSONParseError
	if errors.As(err, &jsonErr) {
		return CategoryMalformed
	}

	// Check for validation errors
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryMalformed
	}

	// Check for timeout errors
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsTransient reports whether the failure is likely temporary.
func IsTransient(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsMalformed reports whether the failure was unusable output.
func IsMalformed(err error) bool {
	return Categorize(err) == CategoryMalformed
}
