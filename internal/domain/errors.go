package domain

import "errors"

var (
	ErrNotFound             = errors.New("entry not found")
	ErrReadOnly             = errors.New("collection is read-only")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedComponent = errors.New("collection does not support component")
)
