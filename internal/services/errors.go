package services

import "github.com/pkg/errors"

// Domain error sentinels. Handlers translate these to HTTP statuses; anything
// else is treated as a transient store failure, safe to retry from the top
// because every toggle step is individually idempotent.
var (
	// ErrNotFound means the target entity does not exist.
	ErrNotFound = errors.New("target not found")

	// ErrInvalidArgument means the reaction kind is not valid for the
	// target kind, or an identifier is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
)
