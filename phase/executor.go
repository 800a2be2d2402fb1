package phase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/report"
)

// TimeoutPayload starts the payload of a phase whose command timed out
const TimeoutPayload = "TIMEOUT"

// Target is one (project, phase) pair
type Target struct {
	Project string
	Dir     string
	Phase   Phase
}

func (t Target) key() report.Key {
	return report.Key{Project: t.Project, ProjectDir: t.Dir, Phase: string(t.Phase)}
}

// Outcome is what an Action observed. When Status is empty the executor
// classifies from ExitCode and TimedOut.
type Outcome struct {
	Status   report.Status
	ExitCode int
	TimedOut bool
	Payload  string
}

// Action performs the work of one phase for one project. It returns an
// error only when it could not run at all; the executor records such
// errors as ERROR unless ctx was cancelled or a tool could not be acquired.
type Action interface {
	Run(ctx context.Context, target Target) (Outcome, error)
}

// ActionFunc adapts a function to Action
type ActionFunc func(ctx context.Context, target Target) (Outcome, error)

// Run calls f
func (f ActionFunc) Run(ctx context.Context, target Target) (Outcome, error) {
	return f(ctx, target)
}

// Disposition says how Execute concluded
type Disposition string

const (
	// Ran: the action ran and exactly one report was written
	Ran Disposition = "ran"
	// Checkpoint: a done report existed; nothing ran
	Checkpoint Disposition = "checkpoint"
	// Blocked: an ERROR report existed and the failure policy declined a retry
	Blocked Disposition = "blocked"
	// DependencyUnmet: the predecessor has not succeeded; nothing ran or was written
	DependencyUnmet Disposition = "dependency-unmet"
)

// Result is the outcome of Execute
type Result struct {
	Target      Target
	Disposition Disposition
	Status      report.Status // empty for DependencyUnmet
	Payload     string
	Duration    time.Duration
}

// Executor runs phases against a report store
type Executor struct {
	store  report.Store
	policy Policy
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor. A nil failure policy means AutoFail.
func NewExecutor(store report.Store, policy Policy, log *zap.SugaredLogger) *Executor {
	if policy.Failure == nil {
		policy.Failure = AutoFail{}
	}
	return &Executor{store: store, policy: policy, logger: logger.OrNop(log)}
}

// Policy returns the executor's policy
func (e *Executor) Policy() Policy {
	return e.policy
}

// Done reports whether r lets the phase count as completed
func (e *Executor) Done(r Result) bool {
	return r.Status.Done(e.policy.PartialCountsAsDone)
}

// CanContinue reports whether the successor of r's phase may run
func (e *Executor) CanContinue(r Result) bool {
	return r.Status.Satisfies(e.policy.PartialSatisfiesDependency)
}

// Execute drives target through dependency check, checkpoint check, run,
// classification and persistence. Unmet dependencies return an error
// wrapping ErrDependencyUnmet. Cancellation while the action runs returns
// ctx's error and writes nothing, as does an action error wrapping
// ErrToolAcquisitionFailed.
func (e *Executor) Execute(ctx context.Context, target Target, action Action) (Result, error) {
	log := e.logger.With(logger.FieldProject, target.Project, logger.FieldPhase, target.Phase)
	res := Result{Target: target}

	if err := e.checkDependency(target, log); err != nil {
		res.Disposition = DependencyUnmet
		log.Infow("Dependency unmet", logger.FieldError, err)
		return res, err
	}

	own, found, err := e.store.Read(target.key())
	if err != nil {
		log.Warnw("Ignoring unreadable report", logger.FieldError, err)
		found = false
	}
	if found {
		switch {
		case own.Status.Done(e.policy.PartialCountsAsDone):
			res.Disposition, res.Status, res.Payload = Checkpoint, own.Status, own.Payload
			log.Debugw("Checkpoint found, skipping", logger.FieldStatus, own.Status)
			return res, nil

		case own.Status == report.StatusError:
			retry, err := e.policy.Failure.Retry(ctx, target, own)
			if err != nil {
				return res, errors.Wrap(err, "failure policy")
			}
			if !retry {
				res.Disposition, res.Status, res.Payload = Blocked, own.Status, own.Payload
				log.Infow("Previous failure kept", logger.FieldStatus, own.Status)
				return res, nil
			}
			log.Infow("Retrying failed phase")
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	log.Infow("Running phase", logger.FieldDir, target.Dir)
	start := time.Now()
	outcome, runErr := action.Run(ctx, target)
	res.Duration = time.Since(start)

	if ctx.Err() != nil {
		log.Warnw("Phase interrupted, no report written", logger.FieldDurationMS, res.Duration.Milliseconds())
		if runErr != nil {
			return res, runErr
		}
		return res, ctx.Err()
	}
	if errors.IsToolAcquisitionFailed(runErr) {
		log.Errorw("Tool unavailable, no report written", logger.FieldError, runErr)
		return res, runErr
	}

	res.Disposition = Ran
	res.Status, res.Payload = e.classify(target, outcome, runErr)

	if err := e.store.Write(target.key(), res.Status, res.Payload); err != nil {
		return res, errors.Wrapf(err, "persist %s report for %s", target.Phase, target.Project)
	}

	fields := []interface{}{logger.FieldStatus, res.Status, logger.FieldDurationMS, res.Duration.Milliseconds()}
	if res.Status == report.StatusError {
		log.Warnw("Phase concluded", fields...)
	} else {
		log.Infow("Phase concluded", fields...)
	}
	return res, nil
}

// checkDependency returns nil when target has no predecessor or the
// predecessor's report satisfies it
func (e *Executor) checkDependency(target Target, log *zap.SugaredLogger) error {
	pred, ok := target.Phase.Predecessor()
	if !ok {
		return nil
	}

	key := target.key()
	key.Phase = string(pred)
	prev, found, err := e.store.Read(key)

	var reason string
	switch {
	case err != nil:
		reason = "report unreadable: " + err.Error()
	case !found:
		reason = "not attempted"
	case !prev.Status.Satisfies(e.policy.PartialSatisfiesDependency):
		reason = "status " + prev.Status.String()
	default:
		return nil
	}

	return errors.WithHintf(
		errors.Wrapf(errors.ErrDependencyUnmet, "%s of %s requires %s (%s)", target.Phase, target.Project, pred, reason),
		"run `collector %s %s` first", pred, target.Project)
}

// classify maps what the action observed to a status and payload
func (e *Executor) classify(target Target, o Outcome, runErr error) (report.Status, string) {
	switch {
	case runErr != nil:
		return report.StatusError, runErr.Error()
	case o.Status != "":
		return o.Status, o.Payload
	case o.TimedOut:
		if o.Payload == "" {
			return report.StatusError, TimeoutPayload
		}
		return report.StatusError, TimeoutPayload + "\n" + o.Payload
	case o.ExitCode == 0:
		return report.StatusSuccess, o.Payload
	case e.policy.allowsPartial(target.Phase, target.Dir):
		return report.StatusPartial, o.Payload
	}

	if o.Payload == "" {
		return report.StatusError, fmt.Sprintf("exit %d", o.ExitCode)
	}
	return report.StatusError, o.Payload
}
