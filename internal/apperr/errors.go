// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrReadonly is returned by writes against a derived data source.
	ErrReadonly = errors.New("read-only")
)
