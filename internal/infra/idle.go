package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// Idle probe names accepted by the idle.probes config key.
const (
	ProbeKWin       = "kwin"
	ProbeMutter     = "mutter"
	ProbeXPrintIdle = "xprintidle"
)

// DefaultIdleProbes is the probe order used when none is configured.
var DefaultIdleProbes = []string{ProbeKWin, ProbeMutter, ProbeXPrintIdle}

// IdleSource is one way of asking the desktop for the idle time.
type IdleSource interface {
	Name() string
	Idle(ctx context.Context) (time.Duration, error)
}

// sessionBus lazily connects to the DBus session bus and drops the
// connection after a failure so the next call reconnects.
type sessionBus struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (b *sessionBus) get(ctx context.Context) (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn.Connected() {
		return b.conn, nil
	}
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return conn, nil
}

func (b *sessionBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// KWinIdleProbe reads KWin's IdleTime property (Plasma on Wayland).
type KWinIdleProbe struct {
	bus *sessionBus
}

// NewKWinIdleProbe creates a KWin idle source.
func NewKWinIdleProbe() *KWinIdleProbe {
	return &KWinIdleProbe{bus: &sessionBus{}}
}

// Name identifies the probe in logs.
func (p *KWinIdleProbe) Name() string { return ProbeKWin }

// Idle returns the KWin idle time.
func (p *KWinIdleProbe) Idle(ctx context.Context) (time.Duration, error) {
	conn, err := p.bus.get(ctx)
	if err != nil {
		return 0, err
	}
	var v dbus.Variant
	err = conn.Object("org.kde.KWin", "/org/kde/KWin/IdleTime").
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, "org.kde.KWin.IdleTime", "IdleTime").
		Store(&v)
	if err != nil {
		p.bus.reset()
		return 0, err
	}
	return millisToDuration(v.Value())
}

// MutterIdleProbe calls GNOME Mutter's IdleMonitor.
type MutterIdleProbe struct {
	bus *sessionBus
}

// NewMutterIdleProbe creates a Mutter idle source.
func NewMutterIdleProbe() *MutterIdleProbe {
	return &MutterIdleProbe{bus: &sessionBus{}}
}

// Name identifies the probe in logs.
func (p *MutterIdleProbe) Name() string { return ProbeMutter }

// Idle returns the Mutter idle time.
func (p *MutterIdleProbe) Idle(ctx context.Context) (time.Duration, error) {
	conn, err := p.bus.get(ctx)
	if err != nil {
		return 0, err
	}
	var ms uint64
	err = conn.Object("org.gnome.Mutter.IdleMonitor", "/org/gnome/Mutter/IdleMonitor/Core").
		CallWithContext(ctx, "org.gnome.Mutter.IdleMonitor.GetIdletime", 0).
		Store(&ms)
	if err != nil {
		p.bus.reset()
		return 0, err
	}
	return millisToDuration(ms)
}

// XPrintIdleProbe runs xprintidle (X11 sessions).
type XPrintIdleProbe struct {
	runner CommandRunner
}

// NewXPrintIdleProbe creates an xprintidle idle source.
func NewXPrintIdleProbe(runner CommandRunner) *XPrintIdleProbe {
	return &XPrintIdleProbe{runner: runner}
}

// Name identifies the probe in logs.
func (p *XPrintIdleProbe) Name() string { return ProbeXPrintIdle }

// Idle returns the X11 idle time.
func (p *XPrintIdleProbe) Idle(ctx context.Context) (time.Duration, error) {
	out, err := p.runner.Output(ctx, "", "xprintidle")
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output %q: %w", out, err)
	}
	return millisToDuration(ms)
}

// millisToDuration converts a DBus or command millisecond value.
func millisToDuration(v any) (time.Duration, error) {
	var ms int64
	switch n := v.(type) {
	case int32:
		ms = int64(n)
	case uint32:
		ms = int64(n)
	case int64:
		ms = n
	case uint64:
		ms = int64(n)
	case int:
		ms = int64(n)
	default:
		return 0, fmt.Errorf("unexpected idle value type %T", v)
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative idle time %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ChainIdleProbe implements domain.IdleProbe over an ordered list of
// sources. The first source that answers wins; when none does the idle
// time reads as zero, so enforcement keeps running.
type ChainIdleProbe struct {
	sources []IdleSource
	logger  *zap.Logger
}

// NewChainIdleProbe creates a probe from explicit sources.
func NewChainIdleProbe(logger *zap.Logger, sources ...IdleSource) *ChainIdleProbe {
	return &ChainIdleProbe{sources: sources, logger: logger}
}

// NewIdleProbeFromNames builds the chain from config names.
func NewIdleProbeFromNames(names []string, runner CommandRunner, logger *zap.Logger) (*ChainIdleProbe, error) {
	if len(names) == 0 {
		names = DefaultIdleProbes
	}
	sources := make([]IdleSource, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ProbeKWin:
			sources = append(sources, NewKWinIdleProbe())
		case ProbeMutter:
			sources = append(sources, NewMutterIdleProbe())
		case ProbeXPrintIdle:
			sources = append(sources, NewXPrintIdleProbe(runner))
		default:
			return nil, fmt.Errorf("unknown idle probe %q", name)
		}
	}
	return NewChainIdleProbe(logger, sources...), nil
}

// IdleDuration returns the idle time from the first working source.
func (c *ChainIdleProbe) IdleDuration(ctx context.Context) time.Duration {
	var errs []error
	for _, src := range c.sources {
		d, err := src.Idle(ctx)
		if err == nil {
			return d
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	if len(errs) == 0 {
		return 0
	}

	c.logger.Debug("idle probe unavailable, assuming active",
		zap.Error(fmt.Errorf("%w: %w", domain.ErrProbeUnavailable, errors.Join(errs...))))
	return 0
}

// Ensure ChainIdleProbe implements domain.IdleProbe.
var _ domain.IdleProbe = (*ChainIdleProbe)(nil)
