// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation on a resource outside their
// scope, while ErrConflict signals that an operation cannot proceed
// due to existing dependent records.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they hold no scope for. Handlers should translate
// this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// of conflicting state. Handlers should translate this into an HTTP
// 409 response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a lookup by natural key matches no row.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
