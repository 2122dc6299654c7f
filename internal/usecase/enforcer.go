// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/policy"
	"github.com/sudo-0-AM/ArcheTYPE/internal/scoring"
)

// Notification titles shown on the desktop.
const (
	TitleFlowLock = "ArcheTYPE Flow Lock"
	TitleIdle     = "ArcheTYPE — Idle"
)

// Branch is the path one enforcement cycle took.
type Branch string

const (
	BranchDisabled   Branch = "disabled"
	BranchIdle       Branch = "idle"
	BranchViolation  Branch = "violation"
	BranchReward     Branch = "reward"
	BranchScanFailed Branch = "scan_failed"
)

// CycleResult summarizes one enforcement cycle.
type CycleResult struct {
	Branch     Branch
	Sleep      time.Duration // How long the loop should wait before the next cycle
	Profile    string
	Violations []domain.ViolationEvent
	Delta      scoring.Delta
	State      domain.PolicyState // Latest state known after the cycle
	StatusSent bool
}

// EnforcerConfig holds the loop cadence and collaborator limits.
type EnforcerConfig struct {
	CheckInterval           time.Duration
	IdleBackoff             time.Duration
	ViolationBackoff        time.Duration
	StatusInterval          time.Duration
	CollaboratorTimeout     time.Duration
	PersistenceFailureLimit int
}

// DefaultEnforcerConfig returns the standard cadence.
func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{
		CheckInterval:           3 * time.Second,
		IdleBackoff:             20 * time.Second,
		ViolationBackoff:        time.Second,
		StatusInterval:          20 * time.Minute,
		CollaboratorTimeout:     30 * time.Second,
		PersistenceFailureLimit: 10,
	}
}

// errLockReleased aborts a score write when the lock was switched off
// between the cycle's read and its write.
var errLockReleased = errors.New("lock released during cycle")

// Enforcer runs enforcement cycles. It is driven by a single goroutine.
type Enforcer struct {
	config     EnforcerConfig
	store      domain.StateStore
	profiles   domain.ProfileLoader
	idle       domain.IdleProbe
	pm         domain.ProcessManager
	notifier   domain.Notifier
	responder  domain.Responder
	dispatcher EventDispatcher
	logger     *zap.Logger

	seen        bool
	lastLock    bool
	lastProfile string
	lastStatus  time.Time

	persistFailures int
	alerted         bool
}

// NewEnforcer creates an enforcer. responder and dispatcher may be nil.
func NewEnforcer(
	config EnforcerConfig,
	store domain.StateStore,
	profiles domain.ProfileLoader,
	idle domain.IdleProbe,
	pm domain.ProcessManager,
	notifier domain.Notifier,
	responder domain.Responder,
	dispatcher EventDispatcher,
	logger *zap.Logger,
) *Enforcer {
	if config.PersistenceFailureLimit < 1 {
		config.PersistenceFailureLimit = 1
	}
	return &Enforcer{
		config:     config,
		store:      store,
		profiles:   profiles,
		idle:       idle,
		pm:         pm,
		notifier:   notifier,
		responder:  responder,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Config returns the enforcer's cadence.
func (e *Enforcer) Config() EnforcerConfig {
	return e.config
}

// LastSeen returns the lock flag and profile observed by the latest cycle.
// ok is false before the first cycle.
func (e *Enforcer) LastSeen() (lockEnabled bool, profile string, ok bool) {
	return e.lastLock, e.lastProfile, e.seen
}

// RunCycle performs one enforcement cycle at wall-clock time now.
func (e *Enforcer) RunCycle(ctx context.Context, now time.Time) CycleResult {
	st, err := e.store.Read()
	if err != nil {
		e.logger.Warn("state unreadable, using defaults", zap.String("path", e.store.Path()), zap.Error(err))
	}
	e.observe(st, now)

	if !st.LockEnabled {
		e.lastStatus = time.Time{}
		return CycleResult{Branch: BranchDisabled, Sleep: e.config.CheckInterval, Profile: st.CurrentProfile, State: st}
	}

	profile, err := e.profiles.Load(st.CurrentProfile)
	if err != nil {
		e.logger.Warn("profile unavailable, enforcement is a no-op",
			zap.String("profile", st.CurrentProfile),
			zap.Error(err))
	}

	result := e.enforce(ctx, now, st, profile)
	result.Profile = st.CurrentProfile
	result.StatusSent = e.maybeStatus(now, result.State)
	return result
}

func (e *Enforcer) enforce(ctx context.Context, now time.Time, st domain.PolicyState, profile domain.Profile) CycleResult {
	if limit := profile.IdleLimit(); limit > 0 {
		if idle := e.idle.IdleDuration(ctx); idle >= limit {
			e.logger.Info("idle limit reached",
				zap.Duration("idle", idle),
				zap.Duration("limit", limit))
			e.correct(ctx, fmt.Sprintf("I am idle for %s minutes.",
				strconv.FormatFloat(profile.IdleLimitMinutes, 'f', -1, 64)))
			e.notify(TitleIdle, "Wake up.")
			return CycleResult{Branch: BranchIdle, Sleep: e.config.IdleBackoff, State: st}
		}
	}

	procs, err := e.pm.Enumerate(ctx)
	if err != nil {
		e.logger.Warn("process scan failed", zap.Error(err))
		return CycleResult{Branch: BranchScanFailed, Sleep: e.config.CheckInterval, State: st}
	}

	self := e.pm.GetCurrentPID()
	var violations []domain.ViolationEvent
	var total scoring.Delta
	for _, obs := range procs {
		if obs.PID == self {
			continue
		}
		if policy.Classify(profile, obs) != domain.Blacklisted {
			continue
		}

		ev := domain.ViolationEvent{ID: uuid.NewString(), Name: obs.Name, PID: obs.PID, Timestamp: now}
		violations = append(violations, ev)
		d, latest := e.handleViolation(ctx, now, profile, ev)
		total.Score += d.Score
		total.XP += d.XP
		if latest != nil {
			st = *latest
		}
	}

	if len(violations) > 0 {
		return CycleResult{Branch: BranchViolation, Sleep: e.config.ViolationBackoff,
			Violations: violations, Delta: total, State: st}
	}

	var delta scoring.Delta
	written, ok := e.persist(func(s *domain.PolicyState) error {
		if !s.LockEnabled {
			return errLockReleased
		}
		scoring.ApplyDailyReset(s, now)
		delta = scoring.RewardTick(s, profile, scoring.ElapsedFraction(e.config.CheckInterval))
		scoring.ExtendStreak(s, e.config.CheckInterval)
		return nil
	})
	if ok {
		st = written
	} else {
		delta = scoring.Delta{}
	}
	return CycleResult{Branch: BranchReward, Sleep: e.config.CheckInterval, Delta: delta, State: st}
}

// handleViolation kills, penalizes and reports one blacklisted process.
func (e *Enforcer) handleViolation(ctx context.Context, now time.Time, profile domain.Profile, ev domain.ViolationEvent) (scoring.Delta, *domain.PolicyState) {
	killed := false
	if profile.ShouldKill() {
		if err := e.pm.Kill(ctx, ev.PID); err != nil {
			// Never retried; the next cycle sees the process again if it survived.
			e.logger.Warn("failed to kill process", zap.Int("pid", ev.PID), zap.String("name", ev.Name), zap.Error(err))
		} else {
			killed = true
		}
	}

	e.logger.Warn("violation",
		zap.String("violation_id", ev.ID),
		zap.String("name", ev.Name),
		zap.Int("pid", ev.PID),
		zap.String("profile", profile.Name),
		zap.Bool("killed", killed))

	var delta scoring.Delta
	written, ok := e.persist(func(s *domain.PolicyState) error {
		if !s.LockEnabled {
			return errLockReleased
		}
		scoring.ApplyDailyReset(s, now)
		delta = scoring.PenaltyTick(s, profile)
		return nil
	})

	e.notify(TitleFlowLock, "Blocked: "+ev.Name)

	if profile.CorrectionOnViolation {
		e.correct(ctx, fmt.Sprintf("I attempted to open %s during flow lock.", ev.Name))
	}

	if !ok {
		return scoring.Delta{}, nil
	}
	return delta, &written
}

// observe logs state transitions and fires the prepare hook when the
// profile changes while the lock is on.
func (e *Enforcer) observe(st domain.PolicyState, now time.Time) {
	defer func() {
		e.seen = true
		e.lastLock = st.LockEnabled
		e.lastProfile = st.CurrentProfile
	}()

	if !e.seen {
		e.logger.Info("initial state",
			zap.Bool("lock_enabled", st.LockEnabled),
			zap.String("profile", st.CurrentProfile))
		return
	}

	if st.LockEnabled != e.lastLock {
		if st.LockEnabled {
			e.logger.Info("flow lock ACTIVE", zap.String("profile", st.CurrentProfile))
		} else {
			e.logger.Info("flow lock DISABLED")
		}
	}

	if st.CurrentProfile != e.lastProfile {
		e.logger.Info("profile changed",
			zap.String("from", e.lastProfile),
			zap.String("to", st.CurrentProfile))
		if st.LockEnabled && e.lastLock && e.dispatcher != nil {
			e.dispatcher.Dispatch(NewProfileEvent(st.CurrentProfile, domain.SourceDaemon, now))
		}
	}
}

// persist writes through the store and tracks consecutive failures.
func (e *Enforcer) persist(fn func(*domain.PolicyState) error) (domain.PolicyState, bool) {
	st, err := e.store.Update(fn)
	if errors.Is(err, errLockReleased) {
		e.logger.Info("lock released mid-cycle, score unchanged")
		return st, false
	}
	if err != nil {
		e.persistFailures++
		e.logger.Warn("failed to persist state",
			zap.Int("consecutive_failures", e.persistFailures),
			zap.Error(err))

		if e.persistFailures >= e.config.PersistenceFailureLimit && !e.alerted {
			e.alerted = true
			e.logger.Error("state persistence degraded",
				zap.String("alert", "persistence_degraded"),
				zap.Int("consecutive_failures", e.persistFailures),
				zap.String("path", e.store.Path()),
				zap.Error(err))
			e.notify(TitleFlowLock, "Score is not being saved. Check "+e.store.Path())
		}
		return st, false
	}

	if e.alerted {
		e.logger.Info("state persistence recovered", zap.Int("failed_writes", e.persistFailures))
	}
	e.persistFailures = 0
	e.alerted = false
	return st, true
}

// maybeStatus emits the periodic summary while the lock is on.
func (e *Enforcer) maybeStatus(now time.Time, st domain.PolicyState) bool {
	if e.lastStatus.IsZero() {
		e.lastStatus = now
		return false
	}
	if now.Sub(e.lastStatus) < e.config.StatusInterval {
		return false
	}
	e.lastStatus = now
	e.notify(TitleFlowLock, fmt.Sprintf("Score %.1f | XP %.1f | Level %d",
		st.ScoreFor(now), st.TotalXP, st.Level))
	return true
}

// correct asks the collaborator for a correction and logs the reply.
func (e *Enforcer) correct(ctx context.Context, prompt string) {
	if e.responder == nil {
		return
	}
	reply, err := callWithTimeout(ctx, e.config.CollaboratorTimeout, func(ctx context.Context) (string, error) {
		return e.responder.Respond(ctx, prompt)
	})
	if err != nil {
		e.logger.Warn("correction failed", zap.String("prompt", prompt), zap.Error(err))
		return
	}
	e.logger.Info("correction", zap.String("prompt", prompt),
		zap.String("reply", strings.ReplaceAll(reply, "\n", " | ")))
}

func (e *Enforcer) notify(title, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(title, body); err != nil {
		e.logger.Debug("notification failed", zap.String("title", title), zap.Error(err))
	}
}

// callWithTimeout runs fn under a hard deadline. If fn ignores its
// context it is abandoned and finishes on its own.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		reply string
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := fn(ctx)
		done <- outcome{reply, err}
	}()

	select {
	case o := <-done:
		return o.reply, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("no reply after %s: %w", timeout, domain.ErrCollaboratorTimeout)
	}
}
