package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor may not touch the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid gateway credential.
	ErrUnauthorized = errors.New("unauthorized")
)
