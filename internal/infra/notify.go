package infra

import (
	"fmt"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// DefaultNotifyCommand is the desktop notification sink.
const DefaultNotifyCommand = "notify-send"

// NotifySendNotifier implements domain.Notifier by spawning notify-send
// (or a compatible command taking title and body arguments).
type NotifySendNotifier struct {
	command string
	args    []string
	runner  CommandRunner
}

// NewNotifySendNotifier creates a notifier for the given command line.
// An empty command falls back to notify-send.
func NewNotifySendNotifier(command string) *NotifySendNotifier {
	return NewNotifySendNotifierWithRunner(command, &RealCommandRunner{})
}

// NewNotifySendNotifierWithRunner creates a notifier with an injectable runner (for testing).
func NewNotifySendNotifierWithRunner(command string, runner CommandRunner) *NotifySendNotifier {
	name, args, ok := SplitCommand(command)
	if !ok {
		name, args = DefaultNotifyCommand, nil
	}
	return &NotifySendNotifier{command: name, args: args, runner: runner}
}

// Notify starts the sink and returns without waiting for it.
func (n *NotifySendNotifier) Notify(title, body string) error {
	args := append(append([]string{}, n.args...), title, body)
	if err := n.runner.Start(n.command, args...); err != nil {
		return fmt.Errorf("%s: %w", n.command, err)
	}
	return nil
}

// NopNotifier drops every notification. Used when notify.enabled is false.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(string, string) error { return nil }

var (
	_ domain.Notifier = (*NotifySendNotifier)(nil)
	_ domain.Notifier = NopNotifier{}
)
