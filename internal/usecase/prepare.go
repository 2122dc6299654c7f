package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// EventDispatcher delivers profile-prepare events.
type EventDispatcher interface {
	Dispatch(event domain.ProfileEvent)
}

// NewProfileEvent builds an event with a fresh id.
func NewProfileEvent(profile string, source domain.EventSource, now time.Time) domain.ProfileEvent {
	return domain.ProfileEvent{
		ID:        uuid.NewString(),
		Profile:   profile,
		Source:    source,
		Timestamp: now,
	}
}

// PrepareDispatcher runs the profile preparer in the background with a
// per-attempt timeout and a bounded number of retries. Every attempt is
// logged, so a failing hook is visible instead of silently dropped.
type PrepareDispatcher struct {
	preparer domain.ProfilePreparer
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewPrepareDispatcher creates a dispatcher.
func NewPrepareDispatcher(preparer domain.ProfilePreparer, timeout time.Duration, retries int, logger *zap.Logger) *PrepareDispatcher {
	if retries < 0 {
		retries = 0
	}
	return &PrepareDispatcher{
		preparer: preparer,
		timeout:  timeout,
		retries:  retries,
		backoff:  time.Second,
		logger:   logger,
	}
}

// Dispatch starts delivery and returns immediately.
func (d *PrepareDispatcher) Dispatch(event domain.ProfileEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.deliver(event)
	}()
}

// Wait blocks until every dispatched event finished.
func (d *PrepareDispatcher) Wait() {
	d.wg.Wait()
}

// WaitTimeout waits at most timeout. Returns false if deliveries are
// still running.
func (d *PrepareDispatcher) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *PrepareDispatcher) deliver(event domain.ProfileEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("profile", event.Profile),
		zap.String("source", string(event.Source)),
	}

	var err error
	for attempt := 1; attempt <= d.retries+1; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.preparer.Prepare(ctx, event)
		cancel()

		if err == nil {
			d.logger.Info("profile prepared", append(fields, zap.Int("attempt", attempt))...)
			return nil
		}
		d.logger.Warn("profile prepare failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)

		if attempt <= d.retries {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
	}

	d.logger.Error("profile prepare abandoned", append(fields, zap.Int("attempts", d.retries+1), zap.Error(err))...)
	return err
}

// Ensure PrepareDispatcher implements EventDispatcher.
var _ EventDispatcher = (*PrepareDispatcher)(nil)
