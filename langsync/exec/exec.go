// Package exec provides shell command execution helpers.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// CommandError is returned by Ex when the command ran
// but exited with a non-zero status. Output holds the
// combined stdout+stderr so callers can inspect what
// the command reported.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf(
		"%s %s: exit status %d",
		e.Name, strings.Join(e.Args, " "), e.ExitCode,
	)
}

// Unwrap returns the underlying *exec.ExitError.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Ex executes the named command in the given directory and
// returns combined stdout+stderr output. Pass empty dir to
// use the current working directory.
//
// A non-zero exit yields a *CommandError wrapped with
// context; failures to start the command (missing binary,
// cancelled context) are returned as plain wrapped errors.
func Ex(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	return ExEnv(ctx, dir, nil, name, arg...)
}

// ExEnv is Ex with extra environment variables. Entries
// in env are "KEY=value" and override the inherited
// environment.
func ExEnv(
	ctx context.Context,
	dir string,
	env []string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	slog.Debug(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
		"dir", dir,
	)

	//nolint:gosec // commands are built by this module
	cmd := exec.CommandContext(ctx, name, arg...)
	if dir != "" {
		cmd.Dir = dir
	}

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	by, err := cmd.CombinedOutput()

	slog.Debug("output", "result", string(by))

	if err == nil {
		return string(by), nil
	}

	if ctx.Err() != nil {
		return string(by), fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, name, strings.Join(arg, " "), ctx.Err(),
		)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(by), fmt.Errorf("%s: %w", errCtx, &CommandError{
			Name:     name,
			Args:     arg,
			ExitCode: exitErr.ExitCode(),
			Output:   string(by),
			Err:      exitErr,
		})
	}

	return string(by), fmt.Errorf(
		"%s: %s %s: %w",
		errCtx, name, strings.Join(arg, " "), err,
	)
}

// AsCommandError extracts a *CommandError from err.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}

	return nil, false
}
