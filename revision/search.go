package revision

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/runner"
)

// BuildFunc builds whatever revision is currently checked out
type BuildFunc func(ctx context.Context, revision string) (runner.Result, error)

// Attempt records one candidate that was tried
type Attempt struct {
	Candidate string
	Result    runner.Result
	Reason    string // empty when the build succeeded
}

// Outcome is the result of a search
type Outcome struct {
	Winner   string
	Attempts []Attempt
}

// Found reports whether some candidate built
func (o Outcome) Found() bool {
	return o.Winner != ""
}

// TimedOut reports whether every attempt failed and at least one by timeout
func (o Outcome) TimedOut() bool {
	if o.Found() {
		return false
	}
	for _, a := range o.Attempts {
		if a.Result.TimedOut {
			return true
		}
	}
	return false
}

// Payload is the report payload: the winning revision, or one
// "<candidate>\t<reason>" line per failed candidate in the order tried
func (o Outcome) Payload() string {
	if o.Found() {
		return o.Winner
	}
	var b strings.Builder
	for _, a := range o.Attempts {
		fmt.Fprintf(&b, "%s\t%s\n", a.Candidate, a.Reason)
	}
	return b.String()
}

// Search tries candidates in order until one builds
type Search struct {
	checkout Checkouter
	build    BuildFunc
	logger   *zap.SugaredLogger
}

// NewSearch creates a search over a working tree
func NewSearch(checkout Checkouter, build BuildFunc, log *zap.SugaredLogger) *Search {
	return &Search{checkout: checkout, build: build, logger: logger.OrNop(log)}
}

// Run checks out and builds each candidate once, stopping at the first
// success. A failed checkout counts as that candidate failing. When every
// candidate fails the working tree is returned to the first candidate.
// An error is returned only when ctx is cancelled.
func (s *Search) Run(ctx context.Context, candidates []string) (Outcome, error) {
	var outcome Outcome

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return outcome, errors.Wrap(err, "revision search cancelled")
		}

		log := s.logger.With(logger.FieldCandidate, candidate, logger.FieldAttempt, i+1)
		attempt := Attempt{Candidate: candidate}

		if err := s.checkout.Checkout(ctx, candidate); err != nil {
			if ctx.Err() != nil {
				return outcome, errors.Wrap(ctx.Err(), "revision search cancelled")
			}
			attempt.Reason = "checkout failed: " + oneLine(err.Error())
			log.Infow("Candidate checkout failed", logger.FieldError, err)
			outcome.Attempts = append(outcome.Attempts, attempt)
			continue
		}

		result, err := s.build(ctx, candidate)
		attempt.Result = result
		switch {
		case err != nil && ctx.Err() != nil:
			return outcome, errors.Wrap(ctx.Err(), "revision search cancelled")
		case err != nil:
			attempt.Reason = "start failed: " + oneLine(err.Error())
		case errors.Is(result.Err(), errors.ErrTimeout):
			attempt.Reason = "timeout"
		case result.Err() != nil:
			attempt.Reason = fmt.Sprintf("exit %d", result.ExitCode)
		}
		outcome.Attempts = append(outcome.Attempts, attempt)

		if attempt.Reason == "" {
			log.Infow("Candidate built", logger.FieldDurationMS, result.Duration.Milliseconds())
			outcome.Winner = candidate
			return outcome, nil
		}
		log.Infow("Candidate failed", "reason", attempt.Reason)
	}

	if len(candidates) > 0 {
		if err := s.checkout.Checkout(ctx, candidates[0]); err != nil {
			s.logger.Warnw("Could not restore primary revision", logger.FieldRevision, candidates[0], logger.FieldError, err)
		}
	}
	return outcome, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
