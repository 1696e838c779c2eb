package services

import "errors"

// Errors returned by the portal services. Handlers map them to HTTP statuses; any
// other error is an internal failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrEmbargoDenied   = errors.New("this data is under embargo")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
)
