// Package errors provides examples of structured error handling in gridcore.
package errors_test

import (
	"fmt"
	"io"

	"github.com/mounirtms/gridcore/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeLoader, "failed to load page")

	// Add context details
	err = err.WithDetail("grid", "products").
		WithDetail("page", 3).
		WithDetail("page_size", 25)

	// Print the error
	fmt.Println(err.Error())

	// Output:
	// loader: failed to load page
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	// Simulate an underlying error
	originalErr := io.EOF

	// Wrap the error with context
	err := errors.Wrap(originalErr, errors.ErrorTypePersistence, "failed to read grid state").
		WithDetail("key", "grid:products:state")

	// Check the error type
	if errors.IsType(err, errors.ErrorTypePersistence) {
		fmt.Println("This is a persistence error")
	}

	// Output:
	// This is a persistence error
}

// ExampleIsRetryable shows how to check if an error is retryable.
func ExampleIsRetryable() {
	loadErr := errors.New(errors.ErrorTypeLoader, "loader rejected page 2")
	colErr := errors.New(errors.ErrorTypeColumnSet, "duplicate field sku")

	if errors.IsRetryable(loadErr) {
		fmt.Println("Loader error is retryable")
	}

	if !errors.IsRetryable(colErr) {
		fmt.Println("Column set error is not retryable")
	}

	// Output:
	// Loader error is retryable
	// Column set error is not retryable
}

// ExampleIsType demonstrates checking error types through wrapping.
func ExampleIsType() {
	saveErr := errors.New(errors.ErrorTypePersistence, "save failed")
	wrapped := errors.Wrap(saveErr, errors.ErrorTypeInternal, "state commit failed")

	fmt.Printf("Is persistence error: %v\n", errors.IsType(saveErr, errors.ErrorTypePersistence))
	fmt.Printf("Wrapped error is internal: %v\n", errors.IsType(wrapped, errors.ErrorTypeInternal))
	fmt.Printf("Wrapped error reports persistence: %v\n", errors.IsType(wrapped, errors.ErrorTypePersistence))

	// Output:
	// Is persistence error: true
	// Wrapped error is internal: true
	// Wrapped error reports persistence: false
}
