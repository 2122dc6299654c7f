// Package daemon drives the enforcement loop as a long-running process.
package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("flowlock daemon already running")

// CycleRunner is the part of usecase.Enforcer the loop needs.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) usecase.CycleResult
	LastSeen() (lockEnabled bool, profile string, ok bool)
}

// InstanceLock keeps a second daemon from starting.
type InstanceLock interface {
	TryAcquire() (bool, error)
	Release() error
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	UnitCheckInterval time.Duration // How often to compare the installed unit with this binary
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		UnitCheckInterval: 60 * time.Second,
	}
}

// Watcher runs enforcement cycles back to back, sleeping for whatever
// each cycle asks for. The sleep ends early on shutdown or when the
// state record changes the lock flag or the profile.
type Watcher struct {
	config    WatcherConfig
	enforcer  CycleRunner
	store     domain.StateStore
	changes   <-chan struct{}
	lock      InstanceLock
	autostart domain.AutostartManager
	execPath  string
	logger    *zap.Logger
	now       func() time.Time

	unitCheck <-chan time.Time
}

// NewWatcher creates a new watcher daemon. changes, lock and autostart may be nil.
func NewWatcher(
	config WatcherConfig,
	enforcer CycleRunner,
	store domain.StateStore,
	changes <-chan struct{},
	lock InstanceLock,
	autostart domain.AutostartManager,
	execPath string,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:    config,
		enforcer:  enforcer,
		store:     store,
		changes:   changes,
		lock:      lock,
		autostart: autostart,
		execPath:  execPath,
		logger:    logger,
		now:       time.Now,
	}
}

// Run starts the loop. It blocks until ctx is canceled and always lets
// the cycle in progress finish first.
func (w *Watcher) Run(ctx context.Context) error {
	if w.lock != nil {
		ok, err := w.lock.TryAcquire()
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyRunning
		}
		defer func() {
			if err := w.lock.Release(); err != nil {
				w.logger.Warn("failed to release instance lock", zap.Error(err))
			}
		}()
	}

	w.logger.Info("flow lock daemon started", zap.Int("pid", os.Getpid()))

	w.ensureUnitCurrent()
	if w.autostart != nil && w.config.UnitCheckInterval > 0 {
		ticker := time.NewTicker(w.config.UnitCheckInterval)
		defer ticker.Stop()
		w.unitCheck = ticker.C
	}

	// Cycles ignore shutdown so a kill or a score write is never cut in half.
	cycleCtx := context.WithoutCancel(ctx)
	for {
		res := w.enforcer.RunCycle(cycleCtx, w.now())
		w.logger.Debug("cycle finished",
			zap.String("branch", string(res.Branch)),
			zap.String("profile", res.Profile),
			zap.Int("violations", len(res.Violations)),
			zap.Duration("sleep", res.Sleep))

		if !w.sleep(ctx, res.Sleep) {
			w.logger.Info("flow lock daemon stopping")
			return nil
		}
	}
}

// sleep waits for d. It returns false when ctx is done.
func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-timer.C:
			return true

		case <-w.changes:
			if w.controlChanged() {
				w.logger.Debug("state changed, waking early")
				return true
			}

		case <-w.unitCheck:
			w.ensureUnitCurrent()
		}
	}
}

// controlChanged reports whether the stored lock flag or profile differs
// from what the last cycle saw. Score writes by the loop itself do not count.
func (w *Watcher) controlChanged() bool {
	st, err := w.store.Read()
	if err != nil {
		return false
	}
	lock, profile, ok := w.enforcer.LastSeen()
	return !ok || st.LockEnabled != lock || st.CurrentProfile != profile
}

// ensureUnitCurrent rewrites an installed unit that points at another
// binary. A unit removed by `uninstall` stays removed.
func (w *Watcher) ensureUnitCurrent() {
	if w.autostart == nil || w.execPath == "" {
		return
	}
	if !w.autostart.IsInstalled() || !w.autostart.NeedsUpdate(w.execPath) {
		return
	}

	w.logger.Info("autostart unit outdated, updating...", zap.String("unit", w.autostart.GetUnitPath()))
	if err := w.autostart.Install(w.execPath); err != nil {
		w.logger.Error("failed to update autostart unit", zap.Error(err))
	} else {
		w.logger.Info("autostart unit updated successfully")
	}
}
