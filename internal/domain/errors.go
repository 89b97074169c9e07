package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedResponse marks a reasoning-service reply that could not be
	// decoded or failed enum validation.
	ErrMalformedResponse = errors.New("malformed reasoning response")
)
