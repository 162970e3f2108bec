package domain

import "errors"

var (
	// ErrInvalidCallKind rejects call types other than audio/video at the edge.
	ErrInvalidCallKind = errors.New("invalid call kind")

	// ErrEmptyUserID rejects registration of a blank identity.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)
