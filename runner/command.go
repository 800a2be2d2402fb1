// Package runner executes external commands (build tools, analyzers) with an
// explicit working directory and timeout, and never through a shell.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/implicit-corpus/collector/errors"
)

// Command describes one external invocation
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE pairs added to the inherited environment
	Timeout time.Duration
}

// Result is the observed outcome of a command that started
type Result struct {
	ExitCode int
	TimedOut bool
	Output   string // combined stdout and stderr, tail-bounded
	Duration time.Duration
}

// Succeeded reports a zero exit without timeout
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Err is nil for a successful result. A timeout wraps ErrTimeout and a
// non-zero exit wraps ErrCommandFailed.
func (r Result) Err() error {
	switch {
	case r.TimedOut:
		return errors.Wrapf(errors.ErrTimeout, "after %s", r.Duration.Round(time.Millisecond))
	case r.ExitCode != 0:
		return errors.Wrapf(errors.ErrCommandFailed, "exit %d", r.ExitCode)
	}
	return nil
}

// Runner runs commands. Implementations return an error only when the
// process could not be started or the context was cancelled; a non-zero
// exit or a timeout is reported in Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// String renders the command line, quoted for copy and paste
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// ParseCommandLine splits a configured command string into argv using shell
// quoting rules. No shell is involved when the command runs.
func ParseCommandLine(line string) ([]string, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "parse command %q: %s", line, err)
	}
	if len(argv) == 0 {
		return nil, errors.NewInvalidRequestError("empty command line")
	}
	return argv, nil
}

// Expand substitutes {key} placeholders in every argument
func Expand(args []string, vars map[string]string) []string {
	if len(vars) == 0 {
		return args
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = r.Replace(arg)
	}
	return out
}

// FromLine builds a Command from a configured command string
func FromLine(line string, vars map[string]string, dir string, timeout time.Duration) (Command, error) {
	argv, err := ParseCommandLine(line)
	if err != nil {
		return Command{}, err
	}
	argv = Expand(argv, vars)
	return Command{Name: argv[0], Args: argv[1:], Dir: dir, Timeout: timeout}, nil
}
