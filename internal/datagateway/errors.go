package datagateway

import "fmt"

// DatabaseError is returned once an operation fails for good. Err is the
// last failure observed.
type DatabaseError struct {
	Op        string
	Attempts  int
	Transient bool
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("datagateway: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
