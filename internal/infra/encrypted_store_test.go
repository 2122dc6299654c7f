package infra

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// newTestEncryptedStore creates an encrypted store in a temp directory for testing.
func newTestEncryptedStore(t *testing.T) (*EncryptedStateStore, string, []byte) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedStateStore(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir, key
}

func TestEncryptedStateStore_ReadEmpty(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	st, err := store.Read()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicyState(), st)
}

func TestEncryptedStateStore_Update(t *testing.T) {
	tests := []struct {
		name      string
		mutations []func(*domain.PolicyState) error
		wantLock  bool
		wantProf  string
		wantRev   int64
	}{
		{
			name: "first write inserts the row",
			mutations: []func(*domain.PolicyState) error{
				func(s *domain.PolicyState) error { s.LockEnabled = true; return nil },
			},
			wantLock: true,
			wantProf: "strict",
			wantRev:  1,
		},
		{
			name: "later writes update in place",
			mutations: []func(*domain.PolicyState) error{
				func(s *domain.PolicyState) error { s.LockEnabled = true; return nil },
				func(s *domain.PolicyState) error { s.CurrentProfile = "study"; return nil },
				func(s *domain.PolicyState) error { s.LockEnabled = false; return nil },
			},
			wantLock: false,
			wantProf: "study",
			wantRev:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, _ := newTestEncryptedStore(t)

			for _, m := range tt.mutations {
				_, err := store.Update(m)
				require.NoError(t, err)
			}

			st, err := store.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.wantLock, st.LockEnabled)
			assert.Equal(t, tt.wantProf, st.CurrentProfile)
			assert.Equal(t, tt.wantRev, st.Revision)
		})
	}
}

func TestEncryptedStateStore_CompareAndSwap(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	base, err := store.Update(func(s *domain.PolicyState) error { return nil })
	require.NoError(t, err)

	next := base
	next.TotalXP = 25
	written, err := store.CompareAndSwap(next)
	require.NoError(t, err)
	assert.Equal(t, 12, written.Level)

	_, err = store.CompareAndSwap(base)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestEncryptedStateStore_PersistsAcrossReopen(t *testing.T) {
	store, dataDir, key := newTestEncryptedStore(t)
	_, err := store.Update(func(s *domain.PolicyState) error {
		s.LockEnabled = true
		s.CurrentProfile = "coding"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedStateStore(dataDir, key)
	require.NoError(t, err)
	defer reopened.Close()

	st, err := reopened.Read()
	require.NoError(t, err)
	assert.True(t, st.LockEnabled)
	assert.Equal(t, "coding", st.CurrentProfile)
}

func TestEncryptedStateStore_WrongKeyFails(t *testing.T) {
	store, dataDir, _ := newTestEncryptedStore(t)
	_, err := store.Update(func(s *domain.PolicyState) error { return nil })
	require.NoError(t, err)
	require.NoError(t, store.Close())

	wrongKey, err := GenerateKey()
	require.NoError(t, err)

	_, err = NewEncryptedStateStore(dataDir, wrongKey)
	assert.Error(t, err)
}

func TestEncryptedStateStore_FileIsNotPlaintext(t *testing.T) {
	store, dataDir, _ := newTestEncryptedStore(t)
	_, err := store.Update(func(s *domain.PolicyState) error {
		s.CurrentProfile = "very-secret-profile"
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dataDir, stateDBName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "very-secret-profile")
	assert.NotContains(t, string(data), "SQLite format 3")
}

func TestEncryptedStateStore_ConcurrentUpdates(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := store.Update(func(s *domain.PolicyState) error {
					s.StreakSeconds++
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	st, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, float64(workers*perWorker), st.StreakSeconds)
}

func TestEncryptedStateStore_Path(t *testing.T) {
	store, dataDir, _ := newTestEncryptedStore(t)
	assert.Equal(t, filepath.Join(dataDir, stateDBName), store.Path())
}
