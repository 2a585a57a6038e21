package auth

import "errors"

var (
	// ErrNoKey is returned when a request carries no API key.
	ErrNoKey = errors.New("no API key found")

	// ErrInvalidKey is returned for a key that is not configured.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for a configured but disabled key.
	ErrKeyDisabled = errors.New("API key disabled")
)
