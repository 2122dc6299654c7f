package infra

import (
	"context"
	"fmt"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// ExecPreparer implements domain.ProfilePreparer by running a configured
// command with the profile name appended. Without a command it does nothing.
type ExecPreparer struct {
	command string
	args    []string
	runner  CommandRunner
}

// NewExecPreparer creates a preparer for the given command line.
func NewExecPreparer(command string) *ExecPreparer {
	return NewExecPreparerWithRunner(command, &RealCommandRunner{})
}

// NewExecPreparerWithRunner creates a preparer with an injectable runner (for testing).
func NewExecPreparerWithRunner(command string, runner CommandRunner) *ExecPreparer {
	name, args, _ := SplitCommand(command)
	return &ExecPreparer{command: name, args: args, runner: runner}
}

// Configured reports whether a command is set.
func (p *ExecPreparer) Configured() bool {
	return p.command != ""
}

// Prepare runs `<command> <args...> <profile>`.
func (p *ExecPreparer) Prepare(ctx context.Context, event domain.ProfileEvent) error {
	if p.command == "" {
		return nil
	}
	args := append(append([]string{}, p.args...), event.Profile)
	if err := p.runner.Run(ctx, p.command, args...); err != nil {
		return fmt.Errorf("prepare %q via %s: %w", event.Profile, p.command, err)
	}
	return nil
}

// Ensure ExecPreparer implements domain.ProfilePreparer.
var _ domain.ProfilePreparer = (*ExecPreparer)(nil)
