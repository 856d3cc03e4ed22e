// Package retry re-runs failing node computations with exponential backoff.
//
// Errors are retried only when they are categorized as transient, either
// explicitly with Transient or through a custom Policy.Retryable check.
// Cancellation of the surrounding context always stops retrying.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryPermanent indicates retry won't help. Unknown errors land here.
	CategoryPermanent Category = iota

	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, temporarily unavailable resources.
	CategoryTransient
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category.
type CategorizedError struct {
	Err      error
	Category Category
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Category)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Err: err, Category: CategoryTransient}
}

// Permanent marks err as not worth retrying, overriding any inner category.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Err: err, Category: CategoryPermanent}
}

// Categorize determines how an error should be handled.
// The outermost CategorizedError wins; context errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
