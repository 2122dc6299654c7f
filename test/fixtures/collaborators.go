package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// WriteProfile writes p as <dir>/<p.Name>.yaml.
func WriteProfile(dir string, p domain.Profile) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, p.Name+".yaml"), data, 0644)
}

// FocusProfile is a small profile with round numbers.
func FocusProfile() domain.Profile {
	return domain.Profile{
		Name:             "focus",
		Blacklist:        []string{"youtube-player", "steam"},
		Whitelist:        []string{"code"},
		ScoreReward:      5,
		ScorePenalty:     10,
		ScoreRewardMult:  1,
		ScorePenaltyMult: 1,
		XPMult:           1,
	}
}

// Notification is one recorded desktop notification.
type Notification struct {
	Title string
	Body  string
}

// RecordingNotifier keeps every notification.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *RecordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Title: title, Body: body})
	return nil
}

// Bodies returns the bodies sent so far.
func (n *RecordingNotifier) Bodies() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Body)
	}
	return out
}

// FixedIdle always reports the same idle time.
type FixedIdle time.Duration

func (f FixedIdle) IdleDuration(context.Context) time.Duration {
	return time.Duration(f)
}
