package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrActorRequired occurs when a mutating request carries no actor identity.
	ErrActorRequired = errors.New("actor id required")
)
