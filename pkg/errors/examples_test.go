package errors_test

import (
	"fmt"

	"github.com/agentstation/syncflow/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := &errors.NotFoundError{
		Resource: "run",
		ID:       "0b5e",
	}

	if errors.IsNotFound(err) {
		fmt.Println("Resource not found")
	}

	// Output: Resource not found
}

// Example_triggerRejected shows how callers detect a rejected trigger.
func Example_triggerRejected() {
	err := fmt.Errorf("trigger: %w", errors.ErrRunInProgress)

	if errors.IsRunInProgress(err) {
		fmt.Println("rejected: already running")
	}

	// Output: rejected: already running
}

// Example_normalizationError shows the per-record error carried into a run report.
func Example_normalizationError() {
	err := errors.NewNormalizationError("crm", 4, "amount", "not a number")
	fmt.Println(err)

	// Output: normalize crm record 4 field amount: not a number
}
