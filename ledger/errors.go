package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvariantViolation = errors.New("invariant violation")
	ErrDuplicatePosition  = errors.New("duplicate position")
	ErrPositionNotFound   = errors.New("position not found")
)

// InvariantError reports which quantity went negative and in which operation.
// It matches ErrInvariantViolation with errors.Is.
type InvariantError struct {
	Op    string
	Field string
	Code  string
	Value float64
}

func (e *InvariantError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger: %s: %s %s would be %.4f", e.Op, e.Code, e.Field, e.Value)
	}
	return fmt.Sprintf("ledger: %s: %s would be %.4f", e.Op, e.Field, e.Value)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }
