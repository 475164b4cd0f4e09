package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNegativeBalance is returned when an adjustment would make a balance negative.
	ErrNegativeBalance = errors.New("balance would become negative")

	// ErrConflict is returned when a write-once field already holds a different value.
	ErrConflict = errors.New("conflicting write")
)
