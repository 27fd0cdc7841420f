package domain

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrPersistence         = errors.New("persistence failed")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different parameters")
	ErrForbidden           = errors.New("forbidden")
	ErrBadSignature        = errors.New("invalid webhook signature")
)
