package infra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	// Run executes a command and waits for it to complete.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command, feeding stdin, and returns its stdout.
	Output(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)
	// Start launches a command without waiting for it. The child is
	// reaped in the background.
	Start(name string, args ...string) error
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return withStderr(err, stderr.String())
	}
	return nil
}

// Output executes a command and returns its stdout.
func (r *RealCommandRunner) Output(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, withStderr(err, stderr.String())
	}
	return out, nil
}

// Start launches a command and reaps it in the background.
func (r *RealCommandRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

// SplitCommand splits a configured command line on whitespace.
// Quoting is not supported; wrap complex commands in a script.
func SplitCommand(command string) (string, []string, bool) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
