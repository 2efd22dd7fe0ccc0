// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist or is owned by
// another user.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates the request payload failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrRegistryUnavailable indicates the remote registry is currently
// unreachable. Operations degrade to local-only behavior on this error;
// it is never surfaced to the user as a failure of the requested action.
var ErrRegistryUnavailable = errors.New("remote registry unavailable")
