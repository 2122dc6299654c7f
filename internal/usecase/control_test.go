package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

func newTestController(st domain.PolicyState) (*Controller, *mockStateStore, *mockDispatcher) {
	store := newMockStateStore(st)
	dispatcher := &mockDispatcher{}
	c := NewController(store, dispatcher, zap.NewNop())
	c.now = func() time.Time { return testNow }
	return c, store, dispatcher
}

func TestController_SetLock(t *testing.T) {
	c, store, _ := newTestController(domain.DefaultPolicyState())

	st, err := c.SetLock(true)
	require.NoError(t, err)
	assert.True(t, st.LockEnabled)
	assert.Equal(t, 1, store.updates)

	st, err = c.SetLock(false)
	require.NoError(t, err)
	assert.False(t, st.LockEnabled)
	assert.Equal(t, 2, store.updates)
}

func TestController_SetLockPreservesScore(t *testing.T) {
	st := domain.DefaultPolicyState()
	st.TotalXP = 100
	st.DailyScore = 3
	c, store, _ := newTestController(st)

	_, err := c.SetLock(true)
	require.NoError(t, err)

	assert.Equal(t, 100.0, store.get().TotalXP)
	assert.Equal(t, 3.0, store.get().DailyScore)
}

func TestController_SetProfileTwice(t *testing.T) {
	c, store, dispatcher := newTestController(domain.DefaultPolicyState())

	first, err := c.SetProfile(context.Background(), "coding")
	require.NoError(t, err)
	second, err := c.SetProfile(context.Background(), "coding")
	require.NoError(t, err)

	// Identical apart from the write stamp.
	first.Revision, second.Revision = 0, 0
	first.LastUpdate, second.LastUpdate = 0, 0
	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.updates)

	require.Len(t, dispatcher.events, 2, "prepare fires on every call")
	assert.Equal(t, "coding", dispatcher.events[1].Profile)
	assert.Equal(t, domain.SourceControl, dispatcher.events[1].Source)
	assert.NotEqual(t, dispatcher.events[0].ID, dispatcher.events[1].ID)
}

func TestController_SetProfileRejectsBlank(t *testing.T) {
	c, store, dispatcher := newTestController(domain.DefaultPolicyState())

	_, err := c.SetProfile(context.Background(), "  ")

	assert.ErrorIs(t, err, ErrEmptyProfileName)
	assert.Zero(t, store.updates)
	assert.Empty(t, dispatcher.events)
}

func TestController_SetProfileWriteFailure(t *testing.T) {
	c, store, dispatcher := newTestController(domain.DefaultPolicyState())
	store.updateErr = domain.ErrPersistenceWriteFailed

	_, err := c.SetProfile(context.Background(), "study")

	assert.ErrorIs(t, err, domain.ErrPersistenceWriteFailed)
	assert.Empty(t, dispatcher.events, "nothing to prepare for")
}

func TestController_StatusHidesStaleScore(t *testing.T) {
	st := domain.DefaultPolicyState()
	st.DailyScore = 42
	st.LastScoreDate = testNow.AddDate(0, 0, -1).Format(domain.ScoreDateLayout)
	c, store, _ := newTestController(st)

	got, err := c.Status()

	require.NoError(t, err)
	assert.Zero(t, got.DailyScore)
	assert.Zero(t, store.updates, "status is read-only")
}

func TestController_Dashboard(t *testing.T) {
	st := activeState("coding")
	st.DailyScore = 12.5
	st.LastScoreDate = testNow.Format(domain.ScoreDateLayout)
	st.TotalXP = 64
	st.Level = 20
	c, _, _ := newTestController(st)

	out, err := c.Dashboard(testNow)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "FlowScore (2026-03-14)", lines[0])
	assert.Contains(t, out, "Profile: coding")
	assert.Contains(t, out, "Lock: ON")
	assert.Contains(t, out, "Score: 12.50")
	assert.Contains(t, out, "XP: 64.00")
	assert.Contains(t, out, "Level: 20")
	assert.Equal(t, "["+strings.Repeat("█", 20)+strings.Repeat("░", 20)+"]", lines[len(lines)-1])
}

func TestLevelBar(t *testing.T) {
	tests := []struct {
		level  int
		filled int
	}{
		{0, 0},
		{-3, 0},
		{7, 7},
		{40, 40},
		{95, 40},
	}
	for _, tt := range tests {
		bar := LevelBar(tt.level, DashboardBarWidth)
		assert.Equal(t, DashboardBarWidth, len([]rune(bar)))
		assert.Equal(t, tt.filled, strings.Count(bar, "█"), "level %d", tt.level)
	}
}
