package domain

import "errors"

// Error taxonomy. None of these is fatal to a single enforcement cycle.
var (
	ErrConfigMissing          = errors.New("config missing")
	ErrConfigCorrupt          = errors.New("config corrupt")
	ErrProbeUnavailable       = errors.New("idle probe unavailable")
	ErrKillFailed             = errors.New("kill failed")
	ErrCollaboratorTimeout    = errors.New("collaborator timeout")
	ErrCollaboratorFailure    = errors.New("collaborator failure")
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	// ErrStateConflict is returned by CompareAndSwap when the persisted
	// revision moved since the caller read it.
	ErrStateConflict = errors.New("state revision conflict")
)
