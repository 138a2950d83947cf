// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a key that is already taken; keys are never reused.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDecode marks a stored record that exists but cannot be decoded.
	ErrDecode = errors.New("decode failed")
	// ErrStorage marks an underlying filesystem failure.
	ErrStorage = errors.New("storage failure")

	ErrInvalidKey  = errors.New("invalid attachment key")
	ErrInvalidKind = errors.New("invalid attachment kind")

	// ErrFetch marks a remote resource that could not be retrieved or was
	// rejected.
	ErrFetch = errors.New("fetch failed")
)
