// Package exec runs the host binaries the harness drives: kubectl, envsubst and
// the workflow trigger scripts.
package exec

import (
	"bytes"
	"context"
	"io"
	"os"
	osexec "os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Command describes a single subprocess invocation
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader
	// Env entries are appended to the parent environment, later entries win
	Env []string
}

// String renders the command line for logs
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output holds the captured streams of a finished command
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external commands. Implementations must honour ctx
// cancellation by killing the child process.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Runner implements CommandRunner using os/exec
type Runner struct{}

// NewRunner returns a CommandRunner backed by os/exec
func NewRunner() *Runner {
	return &Runner{}
}

// Run starts the command, waits for it and returns its captured output.
// A non-zero exit is reported as an error carrying stderr.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	c := osexec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: c.ProcessState.ExitCode()}
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, errors.Errorf("%s failed: %v, stderr: %s", cmd.Name, err, strings.TrimSpace(out.Stderr))
	}
	return out, nil
}

// LookPath reports whether a binary can be found on PATH
func LookPath(name string) bool {
	_, err := osexec.LookPath(name)
	return err == nil
}

var _ CommandRunner = (*Runner)(nil)
