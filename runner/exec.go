package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
)

// DefaultOutputLimit is how much trailing output a Result keeps
const DefaultOutputLimit = 64 * 1024

// Exec runs commands as local subprocesses in their own process group
type Exec struct {
	logger      *zap.SugaredLogger
	OutputLimit int
	// WaitDelay bounds how long Wait blocks on output pipes after the
	// process group was killed
	WaitDelay time.Duration
}

// NewExec creates a subprocess runner
func NewExec(log *zap.SugaredLogger) *Exec {
	return &Exec{
		logger:      logger.OrNop(log),
		OutputLimit: DefaultOutputLimit,
		WaitDelay:   5 * time.Second,
	}
}

// Run starts cmd and waits for it, its timeout, or ctx cancellation.
// On timeout or cancellation the whole process group is killed.
func (e *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	log := e.logger.With(logger.FieldCommand, cmd.Name, logger.FieldDir, cmd.Dir)

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.WaitDelay = e.WaitDelay
	setProcessGroup(c)

	tail := newTailBuffer(e.OutputLimit)
	out := io.MultiWriter(tail, newLineLogger(log))
	c.Stdout = out
	c.Stderr = out

	log.Debugw("Starting command", "argv", cmd.String(), logger.FieldTimeout, cmd.Timeout.String())

	start := time.Now()
	if err := c.Start(); err != nil {
		return Result{}, errors.Wrapf(err, "failed to start %s", cmd.Name)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	var timeout <-chan time.Time
	if cmd.Timeout > 0 {
		timer := time.NewTimer(cmd.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timeout:
		killProcessGroup(c)
		<-done
		timedOut = true
	case <-ctx.Done():
		killProcessGroup(c)
		<-done
		return Result{ExitCode: -1, Output: tail.String(), Duration: time.Since(start)},
			errors.Wrapf(ctx.Err(), "%s cancelled", cmd.Name)
	}

	result := Result{
		Output:   tail.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}

	switch {
	case timedOut:
		result.ExitCode = -1
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, errors.Wrapf(waitErr, "failed to wait for %s", cmd.Name)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	log.Debugw("Command finished",
		logger.FieldError, result.Err(),
		logger.FieldExitCode, result.ExitCode,
		logger.FieldTimedOut, result.TimedOut,
		logger.FieldDurationMS, result.Duration.Milliseconds(),
	)
	return result, nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lineLogger forwards complete output lines to the debug log
type lineLogger struct {
	mu      sync.Mutex
	logger  *zap.SugaredLogger
	pending []byte
}

func newLineLogger(log *zap.SugaredLogger) *lineLogger {
	return &lineLogger{logger: log}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, p...)
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(l.pending[:i], "\r")
		if len(line) > 0 {
			l.logger.Debug(string(line))
		}
		l.pending = l.pending[i+1:]
	}
	return len(p), nil
}
