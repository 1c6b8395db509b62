package engine

import "fmt"

// ValidationError reports bad input or a disallowed transition. Nothing was
// written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func required(field string) ValidationError {
	return ValidationError{Field: field, Reason: fmt.Sprintf("%s is required", field)}
}

// CollaboratorError wraps a storage or identity failure with the operation
// that hit it. The engine never retries these.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e CollaboratorError) Unwrap() error {
	return e.Err
}

func collab(op string, err error) error {
	if err == nil {
		return nil
	}
	return CollaboratorError{Op: op, Err: err}
}
