package core

import "errors"

var (
	// ErrSourceUnavailable means the grid could not be obtained: the object is
	// unreadable or the named sheet is absent. Nothing was processed.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSinkFatal means the sink was unreachable or rejected the whole batch.
	ErrSinkFatal = errors.New("sink failed")

	// ErrInvalidMapping is returned for mappings or profiles that cannot be run.
	ErrInvalidMapping = errors.New("invalid mapping")

	// ErrProfileNotFound is returned when no registered profile has the requested name.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateProfile is returned when registering a name twice.
	ErrDuplicateProfile = errors.New("profile already registered")
)
