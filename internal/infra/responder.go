package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// DefaultCollaboratorTimeout bounds one correction request.
const DefaultCollaboratorTimeout = 30 * time.Second

// ExecResponder implements domain.Responder by piping the prompt to a
// command's stdin and returning its stdout.
type ExecResponder struct {
	command string
	args    []string
	timeout time.Duration
	runner  CommandRunner
}

// NewExecResponder creates a responder for the given command line.
func NewExecResponder(command string, timeout time.Duration) *ExecResponder {
	return NewExecResponderWithRunner(command, timeout, &RealCommandRunner{})
}

// NewExecResponderWithRunner creates a responder with an injectable runner (for testing).
func NewExecResponderWithRunner(command string, timeout time.Duration, runner CommandRunner) *ExecResponder {
	name, args, _ := SplitCommand(command)
	if timeout <= 0 {
		timeout = DefaultCollaboratorTimeout
	}
	return &ExecResponder{command: name, args: args, timeout: timeout, runner: runner}
}

// Respond sends text to the collaborator and returns its trimmed reply.
func (r *ExecResponder) Respond(ctx context.Context, text string) (string, error) {
	if r.command == "" {
		return "", fmt.Errorf("no collaborator command configured: %w", domain.ErrCollaboratorFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.runner.Output(ctx, text, r.command, r.args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s after %s: %w", r.command, r.timeout, domain.ErrCollaboratorTimeout)
		}
		return "", fmt.Errorf("%s: %v: %w", r.command, err, domain.ErrCollaboratorFailure)
	}
	return strings.TrimSpace(string(out)), nil
}

// Ensure ExecResponder implements domain.Responder.
var _ domain.Responder = (*ExecResponder)(nil)
