package domain

import "errors"

// Error taxonomy shared by the engine and the API layer.
var (
	// ErrNotFound is returned when a job id is unknown to the store.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidSchedule is returned for a malformed schedule expression or
	// an out-of-range repeat interval.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInactive is returned for a manual trigger on a disabled job.
	ErrInactive = errors.New("job is not active")
	// ErrAlreadyRunning is returned for a manual trigger while a sequential
	// job is in-flight.
	ErrAlreadyRunning = errors.New("job is already running")
	// ErrRateLimited is returned when a manual trigger is throttled.
	ErrRateLimited = errors.New("rate limit exceeded")
)
