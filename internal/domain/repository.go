package domain

import (
	"context"
	"time"
)

// StateStore persists the PolicyState record.
// Implementations: JSON file guarded by a file lock, or SQLCipher database.
type StateStore interface {
	// Read returns the last written state. A missing record yields the
	// default state and no error; an unreadable one yields the default
	// state and an error wrapping ErrConfigCorrupt.
	Read() (PolicyState, error)

	// Update runs fn on the current state and writes the result while
	// holding exclusive access, so concurrent writers never lose updates.
	Update(fn func(*PolicyState) error) (PolicyState, error)

	// CompareAndSwap writes state only if the persisted revision still
	// equals state.Revision. Returns ErrStateConflict otherwise.
	CompareAndSwap(state PolicyState) (PolicyState, error)

	// Path returns the backing file path (used for change notification).
	Path() string

	// Close releases resources (e.g., database connection).
	Close() error
}

// ProfileLoader resolves profile names to Profile bundles.
type ProfileLoader interface {
	// Load returns the named profile. When the profile cannot be found an
	// empty Profile is returned together with an error wrapping
	// ErrConfigMissing.
	Load(name string) (Profile, error)

	// List returns the names of all loadable profiles.
	List() []string
}

// IdleProbe reports how long the user has been idle.
// Failures read as zero idle time.
type IdleProbe interface {
	IdleDuration(ctx context.Context) time.Duration
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// Enumerate returns all running processes.
	Enumerate(ctx context.Context) ([]ProcessObservation, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(ctx context.Context, pid int) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// Notifier displays desktop notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(title, body string) error
}

// Responder is the language-model collaborator used for correction messages.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// ProfilePreparer reacts to profile switches (e.g. launching the tools a
// profile needs).
type ProfilePreparer interface {
	Prepare(ctx context.Context, event ProfileEvent) error
}

// AutostartManager installs the daemon as a session service.
type AutostartManager interface {
	// Install writes the unit file and enables it.
	Install(execPath string) error

	// Uninstall disables and removes the unit file.
	Uninstall() error

	// IsInstalled checks if the unit file exists.
	IsInstalled() bool

	// NeedsUpdate checks if the unit exists but differs from what Install would write.
	NeedsUpdate(execPath string) bool

	// GetUnitPath returns the unit file path.
	GetUnitPath() string
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
