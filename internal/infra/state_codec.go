package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/scoring"
)

// errUnsupportedSchema marks a record written by a newer binary. Such a
// record is never overwritten.
var errUnsupportedSchema = errors.New("unsupported state schema version")

// decodeState parses a persisted record, migrating legacy layouts.
// On failure the default state is returned alongside the error.
func decodeState(data []byte) (domain.PolicyState, error) {
	var st domain.PolicyState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.DefaultPolicyState(), fmt.Errorf("%v: %w", err, domain.ErrConfigCorrupt)
	}

	if st.SchemaVersion > domain.CurrentSchemaVersion {
		return domain.DefaultPolicyState(), fmt.Errorf("version %d: %w: %w",
			st.SchemaVersion, errUnsupportedSchema, domain.ErrConfigCorrupt)
	}

	migrateState(&st)
	scoring.Recompute(&st)
	return st, nil
}

// migrateState upgrades a record in place to CurrentSchemaVersion.
func migrateState(st *domain.PolicyState) {
	if st.SchemaVersion == 0 {
		// Legacy control-script record: lock_enabled, current_profile,
		// daily_score and last_update only. Its fields map one to one.
		st.SchemaVersion = domain.CurrentSchemaVersion
	}
	if st.CurrentProfile == "" {
		st.CurrentProfile = domain.DefaultProfileName
	}
}

// encodeState serializes the record for disk.
func encodeState(st domain.PolicyState) ([]byte, error) {
	return json.MarshalIndent(st, "", "  ")
}

// stampState fills in the bookkeeping fields of a record about to be written.
func stampState(st *domain.PolicyState, prevRevision int64, now time.Time) {
	st.SchemaVersion = domain.CurrentSchemaVersion
	st.Revision = prevRevision + 1
	st.LastUpdate = now.Unix()
	scoring.Recompute(st)
}
