package core

import (
	"errors"
	"fmt"
)

// ErrRepository is the base of every repository failure. All repository
// sentinels below wrap it, so errors.Is(err, ErrRepository) matches any of them.
var ErrRepository = errors.New("repository failure")

var (
	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrRepository)
	ErrUserExists      = fmt.Errorf("%w: user already exists", ErrRepository)
	ErrExpenseNotFound = fmt.Errorf("%w: expense not found", ErrRepository)

	// ErrBackend marks storage faults: unreachable store, malformed records.
	// It must never be confused with the not-found kinds.
	ErrBackend = fmt.Errorf("%w: backend unavailable or corrupt", ErrRepository)
)

func UserNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrUserNotFound, id)
}

func UserExists(id string) error {
	return fmt.Errorf("%w: %s", ErrUserExists, id)
}

func ExpenseNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrExpenseNotFound, id)
}

// BackendError wraps a storage fault so both ErrBackend and cause stay inspectable.
func BackendError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, cause)
}

// IsNotFound reports whether err is one of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrExpenseNotFound)
}
