package energygate

import (
	"errors"
)

var (
	// ErrAuthenticationRejected is returned when the gateway closes the
	// connection instead of answering a ClientAuth
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrNoChallenge is returned when the first message is not a UUIDValidation
	ErrNoChallenge = errors.New("gateway did not send a challenge")

	// ErrNilKey is returned when Dial is given no private key
	ErrNilKey = errors.New("private key is required")

	// ErrAlreadyAuthenticated is returned when Authenticate is called twice
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)
