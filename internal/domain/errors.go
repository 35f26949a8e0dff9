package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSessionFrozen = errors.New("session is no longer collecting")
	ErrTooManyImages = errors.New("image limit reached")
)
