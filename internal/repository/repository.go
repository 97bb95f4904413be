package repository

import "errors"

// Sentinel errors shared by all repository implementations. Token
// records can live in Postgres or Redis, so callers match on these
// instead of driver-specific errors.
var (
	ErrRecordNotFound = errors.New("repository: record not found")
	ErrDuplicate      = errors.New("repository: duplicate record")
)
