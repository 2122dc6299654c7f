package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

const (
	stateDBName = "state.db"
)

// EncryptedStateStore implements domain.StateStore using a SQLCipher
// encrypted SQLite database. The state document lives in a single row;
// its revision column doubles as the compare-and-swap token.
type EncryptedStateStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewEncryptedStateStore opens (or creates) an encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStateStore(dataDir string, key []byte) (*EncryptedStateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	// Immediate transactions take the write lock up front, so two
	// processes running Update serialize instead of failing on upgrade.
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000&_txlock=immediate",
		dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStateStore{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policy_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		document   TEXT NOT NULL,
		revision   INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(domain.CurrentSchemaVersion))
	return err
}

// Read returns the stored state, or defaults when no row exists yet.
func (s *EncryptedStateStore) Read() (domain.PolicyState, error) {
	st, _, err := s.load(s.db)
	return st, err
}

// Update applies fn inside an immediate transaction.
func (s *EncryptedStateStore) Update(fn func(*domain.PolicyState) error) (domain.PolicyState, error) {
	return s.write(func(current domain.PolicyState) (domain.PolicyState, error) {
		next := current
		if err := fn(&next); err != nil {
			return current, err
		}
		return next, nil
	})
}

// CompareAndSwap writes state if the stored revision still matches.
func (s *EncryptedStateStore) CompareAndSwap(state domain.PolicyState) (domain.PolicyState, error) {
	return s.write(func(current domain.PolicyState) (domain.PolicyState, error) {
		if current.Revision != state.Revision {
			return current, fmt.Errorf("expected revision %d, found %d: %w",
				state.Revision, current.Revision, domain.ErrStateConflict)
		}
		return state, nil
	})
}

// Path returns the database file path.
func (s *EncryptedStateStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

// load reads the state row. exists is false when the table is empty.
func (s *EncryptedStateStore) load(q queryRower) (st domain.PolicyState, exists bool, err error) {
	var doc string
	var revision int64
	err = q.QueryRow(`SELECT document, revision FROM policy_state WHERE id = 1`).Scan(&doc, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultPolicyState(), false, nil
	}
	if err != nil {
		return domain.DefaultPolicyState(), false, fmt.Errorf("query state: %v: %w", err, domain.ErrConfigCorrupt)
	}

	st, err = decodeState([]byte(doc))
	// The column is authoritative for CAS even if the document disagrees.
	st.Revision = revision
	return st, true, err
}

func (s *EncryptedStateStore) write(mutate func(domain.PolicyState) (domain.PolicyState, error)) (domain.PolicyState, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.PolicyState{}, fmt.Errorf("begin: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}
	defer tx.Rollback()

	current, exists, err := s.load(tx)
	if err != nil && errors.Is(err, errUnsupportedSchema) {
		return current, fmt.Errorf("refusing to overwrite state: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}

	next, err := mutate(current)
	if err != nil {
		return current, err
	}

	now := s.now()
	stampState(&next, current.Revision, now)
	doc, err := encodeState(next)
	if err != nil {
		return current, fmt.Errorf("encode state: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}

	if exists {
		res, err := tx.Exec(`UPDATE policy_state SET document = ?, revision = ?, updated_at = ?
			WHERE id = 1 AND revision = ?`,
			string(doc), next.Revision, now.Unix(), current.Revision)
		if err != nil {
			return current, fmt.Errorf("update state: %v: %w", err, domain.ErrPersistenceWriteFailed)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return current, fmt.Errorf("state row moved: %w", domain.ErrStateConflict)
		}
	} else {
		_, err := tx.Exec(`INSERT INTO policy_state (id, document, revision, updated_at) VALUES (1, ?, ?, ?)`,
			string(doc), next.Revision, now.Unix())
		if err != nil {
			return current, fmt.Errorf("insert state: %v: %w", err, domain.ErrPersistenceWriteFailed)
		}
	}

	if err := tx.Commit(); err != nil {
		return current, fmt.Errorf("commit: %v: %w", err, domain.ErrPersistenceWriteFailed)
	}
	return next, nil
}

// Ensure EncryptedStateStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStateStore)(nil)
