package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

const (
	// StateFileName is the state document inside the data directory.
	StateFileName = "state.json"

	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
)

// FileStateStore implements domain.StateStore using a JSON document.
// Writers serialize on an advisory lock next to the document and replace
// it with write + rename, so readers never see a partial record.
type FileStateStore struct {
	path        string
	lock        *flock.Flock
	mu          sync.Mutex // flock is per process; this guards goroutines within one
	lockTimeout time.Duration
	now         func() time.Time
}

// NewFileStateStore creates a store at <dataDir>/state.json.
func NewFileStateStore(dataDir string) *FileStateStore {
	return NewFileStateStoreWithPath(filepath.Join(dataDir, StateFileName))
}

// NewFileStateStoreWithPath creates a store at a specific path (for testing).
func NewFileStateStoreWithPath(path string) *FileStateStore {
	return &FileStateStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
}

// Path returns the state document path.
func (s *FileStateStore) Path() string {
	return s.path
}

// Read returns the current state without taking the lock.
func (s *FileStateStore) Read() (domain.PolicyState, error) {
	return s.read()
}

// Update applies fn under the lock and persists the result.
func (s *FileStateStore) Update(fn func(*domain.PolicyState) error) (domain.PolicyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire()
	if err != nil {
		return domain.PolicyState{}, err
	}
	defer unlock()

	current, err := s.read()
	if err != nil && errors.Is(err, errUnsupportedSchema) {
		return current, fmt.Errorf("refusing to overwrite %s: %v: %w", s.path, err, domain.ErrPersistenceWriteFailed)
	}
	// A corrupt record is replaced, starting from defaults.

	next := current
	if err := fn(&next); err != nil {
		return current, err
	}

	stampState(&next, current.Revision, s.now())
	if err := s.atomicWrite(next); err != nil {
		return current, err
	}
	return next, nil
}

// CompareAndSwap writes state if the persisted revision is unchanged.
func (s *FileStateStore) CompareAndSwap(state domain.PolicyState) (domain.PolicyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire()
	if err != nil {
		return domain.PolicyState{}, err
	}
	defer unlock()

	current, err := s.read()
	if err != nil && errors.Is(err, errUnsupportedSchema) {
		return current, fmt.Errorf("refusing to overwrite %s: %v: %w", s.path, err, domain.ErrPersistenceWriteFailed)
	}
	if current.Revision != state.Revision {
		return current, fmt.Errorf("expected revision %d, found %d: %w",
			state.Revision, current.Revision, domain.ErrStateConflict)
	}

	stampState(&state, current.Revision, s.now())
	if err := s.atomicWrite(state); err != nil {
		return current, err
	}
	return state, nil
}

// Close is a no-op; the lock is only held during writes.
func (s *FileStateStore) Close() error {
	return nil
}

// acquire takes the cross-process write lock.
func (s *FileStateStore) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("timed out")
		}
		return nil, fmt.Errorf("failed to acquire state lock: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func (s *FileStateStore) read() (domain.PolicyState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultPolicyState(), nil
		}
		return domain.DefaultPolicyState(), fmt.Errorf("read %s: %v: %w", s.path, err, domain.ErrConfigCorrupt)
	}
	return decodeState(data)
}

// atomicWrite writes state to file atomically (write + rename).
func (s *FileStateStore) atomicWrite(st domain.PolicyState) error {
	data, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("encode state: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %v: %w", tmpPath, err, domain.ErrPersistenceWriteFailed)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("rename %s: %v: %w", tmpPath, err, domain.ErrPersistenceWriteFailed)
	}
	return nil
}

// Ensure FileStateStore implements domain.StateStore.
var _ domain.StateStore = (*FileStateStore)(nil)
