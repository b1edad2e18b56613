package alight

import (
	"errors"
	"fmt"

	"github.com/lumineer/alight/address"
)

// Error kinds. Operations wrap these with the offending address; match them
// with errors.Is.
var (
	// ErrInvalidAddress is a malformed address or segment
	ErrInvalidAddress = address.ErrInvalid
	// ErrConflict is an attempted create where a node or leaf already exists
	ErrConflict = errors.New("conflict")
	// ErrNotFound is an operation targeting an absent address
	ErrNotFound = errors.New("not found")
	// ErrNoSuchChild is a navigation miss without creation intent
	ErrNoSuchChild = fmt.Errorf("no such child: %w", ErrNotFound)
	// ErrNotContainer is a container operation on a leaf
	ErrNotContainer = fmt.Errorf("not a container: %w", ErrConflict)
	// ErrIntegrity means backend state violates the node-XOR-leaf invariant
	ErrIntegrity = errors.New("integrity violation")
	// ErrIO is a failed storage operation
	ErrIO = errors.New("io failure")
)

// IOError wraps err as an [ErrIO] for the given operation and address.
// Returns nil when err is nil.
func IOError(op string, a address.Address, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %q: %w", ErrIO, op, a, err)
}
