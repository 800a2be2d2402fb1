package runner

import (
	"context"
	"sync"
)

// Scripted is a Runner that records every command and answers from a
// script instead of starting processes. Tests use it to count external
// invocations.
type Scripted struct {
	mu    sync.Mutex
	calls []Command

	// Respond produces the result of the n-th call (0-based). When nil
	// every command succeeds.
	Respond func(n int, cmd Command) (Result, error)
}

// Run records cmd and returns the scripted result
func (s *Scripted) Run(ctx context.Context, cmd Command) (Result, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, cmd)
	respond := s.Respond
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	if respond == nil {
		return Result{}, nil
	}
	return respond(n, cmd)
}

// Calls returns a copy of the recorded commands
func (s *Scripted) Calls() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.calls...)
}

// CallCount returns how many commands were run
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// ExitCodes answers the n-th call with codes[n]; later calls exit 0
func ExitCodes(codes ...int) func(int, Command) (Result, error) {
	return func(n int, _ Command) (Result, error) {
		if n < len(codes) {
			return Result{ExitCode: codes[n]}, nil
		}
		return Result{}, nil
	}
}
