package phase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/report"
)

// Policy holds the configurable classification and resume rules
type Policy struct {
	// PartialMode decides when a non-zero exit may be recorded PARTIAL:
	// off never, config whenever the phase is listed in PartialPhases,
	// artifacts only when every evidence glob also matches a file.
	PartialMode     string
	PartialPhases   []Phase
	PartialEvidence map[Phase][]string // globs relative to the project directory

	PartialCountsAsDone        bool
	PartialSatisfiesDependency bool

	Failure FailurePolicy
}

// PolicyFromConfig builds the policy described by the pipeline section.
// Interactive failure handling prompts on in and out.
func PolicyFromConfig(cfg am.PipelineConfig, in io.Reader, out io.Writer) (Policy, error) {
	phases, err := ParseAll(cfg.PartialPhases)
	if err != nil {
		return Policy{}, errors.Wrap(err, "pipeline.partial_phases")
	}

	evidence := make(map[Phase][]string, len(cfg.PartialEvidence))
	for name, globs := range cfg.PartialEvidence {
		p, err := Parse(name)
		if err != nil {
			return Policy{}, errors.Wrap(err, "pipeline.partial_evidence")
		}
		evidence[p] = globs
	}

	failure, err := NewFailurePolicy(cfg.FailurePolicy, in, out)
	if err != nil {
		return Policy{}, err
	}

	return Policy{
		PartialMode:                cfg.PartialMode,
		PartialPhases:              phases,
		PartialEvidence:            evidence,
		PartialCountsAsDone:        cfg.PartialCountsAsDone,
		PartialSatisfiesDependency: cfg.PartialSatisfiesDependency,
		Failure:                    failure,
	}, nil
}

// allowsPartial reports whether a non-zero exit of phase in dir is PARTIAL
func (p Policy) allowsPartial(phase Phase, dir string) bool {
	if p.PartialMode == am.PartialModeOff || p.PartialMode == "" {
		return false
	}

	listed := false
	for _, ph := range p.PartialPhases {
		if ph == phase {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}

	if p.PartialMode == am.PartialModeConfig {
		return true
	}

	globs := p.PartialEvidence[phase]
	if len(globs) == 0 {
		return false
	}
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, g))
		if err != nil || len(matches) == 0 {
			return false
		}
	}
	return true
}

// FailurePolicy decides whether a phase whose stored report is ERROR runs
// again
type FailurePolicy interface {
	Retry(ctx context.Context, target Target, previous report.Report) (bool, error)
}

// NewFailurePolicy returns the policy named by pipeline.failure_policy
func NewFailurePolicy(name string, in io.Reader, out io.Writer) (FailurePolicy, error) {
	switch name {
	case am.FailurePolicyAutoFail, "":
		return AutoFail{}, nil
	case am.FailurePolicyAutoRetry:
		return AutoRetry{}, nil
	case am.FailurePolicyInteractive:
		if in == nil || out == nil {
			return nil, errors.NewInvalidRequestError("interactive failure policy needs a terminal")
		}
		return NewInteractive(in, out), nil
	}
	return nil, errors.NewInvalidRequestError("unknown failure policy %q", name)
}

// AutoFail keeps the stored diagnosis and never re-runs
type AutoFail struct{}

func (AutoFail) Retry(context.Context, Target, report.Report) (bool, error) { return false, nil }

// AutoRetry always re-runs
type AutoRetry struct{}

func (AutoRetry) Retry(context.Context, Target, report.Report) (bool, error) { return true, nil }

// Interactive asks an operator. Prompts from concurrent workers are
// serialised.
type Interactive struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewInteractive prompts on out and reads answers from in
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out}
}

// Retry shows the first line of the stored payload and reads y/N.
// End of input answers no.
func (p *Interactive) Retry(ctx context.Context, target Target, previous report.Report) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	reason, _, _ := strings.Cut(strings.TrimSpace(previous.Payload), "\n")
	if reason == "" {
		reason = "no diagnosis recorded"
	}
	fmt.Fprintf(p.out, "%s %s failed previously (%s). Retry? [y/N] ", target.Project, target.Phase, reason)

	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "read answer")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
