package customresource

import "fmt"

// ValidationError is returned when a required property is missing or a
// property cannot be coerced. No API call is made after one.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid property %s: %s", e.Field, e.Message)
}

// OperationError wraps a failure from the management API.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
