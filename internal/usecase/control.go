package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// DashboardBarWidth is the width of the level bar in Dashboard.
const DashboardBarWidth = 40

// ErrEmptyProfileName is returned by SetProfile for a blank name.
var ErrEmptyProfileName = errors.New("profile name is empty")

// Controller implements the control verbs. Each mutating call performs
// exactly one store update.
type Controller struct {
	store      domain.StateStore
	dispatcher EventDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewController creates a controller. dispatcher may be nil.
func NewController(store domain.StateStore, dispatcher EventDispatcher, logger *zap.Logger) *Controller {
	return &Controller{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// SetLock turns enforcement on or off.
func (c *Controller) SetLock(enabled bool) (domain.PolicyState, error) {
	st, err := c.store.Update(func(s *domain.PolicyState) error {
		s.LockEnabled = enabled
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("set lock: %w", err)
	}
	c.logger.Info("flow lock set", zap.String("lock", onOff(enabled)), zap.Int64("revision", st.Revision))
	return st, nil
}

// SetProfile switches the active profile and dispatches a prepare event.
// Repeating the call with the same name dispatches again.
func (c *Controller) SetProfile(ctx context.Context, name string) (domain.PolicyState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PolicyState{}, ErrEmptyProfileName
	}
	if err := ctx.Err(); err != nil {
		return domain.PolicyState{}, err
	}

	st, err := c.store.Update(func(s *domain.PolicyState) error {
		s.CurrentProfile = name
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("set profile: %w", err)
	}
	c.logger.Info("profile changed", zap.String("profile", name), zap.Int64("revision", st.Revision))

	if c.dispatcher != nil {
		c.dispatcher.Dispatch(NewProfileEvent(name, domain.SourceControl, c.now()))
	}
	return st, nil
}

// Status returns a snapshot with a stale daily score shown as zero.
func (c *Controller) Status() (domain.PolicyState, error) {
	st, err := c.store.Read()
	st.DailyScore = st.ScoreFor(c.now())
	return st, err
}

// Dashboard renders the score summary for day now.
func (c *Controller) Dashboard(now time.Time) (string, error) {
	st, err := c.store.Read()
	return RenderDashboard(st, now), err
}

// RenderDashboard formats the score summary.
func RenderDashboard(st domain.PolicyState, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FlowScore (%s)\n", now.Format(domain.ScoreDateLayout))
	fmt.Fprintf(&b, "Profile: %s\n", st.CurrentProfile)
	fmt.Fprintf(&b, "Lock: %s\n", onOff(st.LockEnabled))
	fmt.Fprintf(&b, "Score: %.2f\n", st.ScoreFor(now))
	fmt.Fprintf(&b, "XP: %.2f\n", st.TotalXP)
	fmt.Fprintf(&b, "Level: %d\n", st.Level)
	fmt.Fprintf(&b, "[%s]", LevelBar(st.Level, DashboardBarWidth))
	return b.String()
}

// LevelBar draws level as filled cells, capped at width.
func LevelBar(level, width int) string {
	filled := min(max(level, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}
