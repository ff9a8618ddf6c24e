package domain

import "errors"

var (
	// ErrNotConnected means the user has no Canvas credential stored.
	ErrNotConnected = errors.New("canvas account not connected")

	// ErrCredentialRejected means Canvas refused the access token.
	ErrCredentialRejected = errors.New("canvas rejected the access token")

	// ErrUserNotFound is returned by updates against an unknown user.
	ErrUserNotFound = errors.New("user not found")
)
