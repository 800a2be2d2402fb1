// Package steps holds the Action of each pipeline phase: the glue between
// the executor and the collaborators that do the work.
package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/importer"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/normalize"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/project"
	"github.com/implicit-corpus/collector/publish"
	"github.com/implicit-corpus/collector/report"
	"github.com/implicit-corpus/collector/revision"
	"github.com/implicit-corpus/collector/runner"
	"github.com/implicit-corpus/collector/toolcache"
)

// payloadLines bounds how much command output a failure report keeps
const payloadLines = 20

// Import acquires a project (when a source is known) and records its
// metadata
type Import struct {
	Importer *importer.Importer
	Sources  map[string]importer.Source // by project name; absent projects are described in place
}

// Run implements phase.Action
func (s *Import) Run(ctx context.Context, t phase.Target) (phase.Outcome, error) {
	var (
		meta project.Metadata
		err  error
	)
	if src, ok := s.Sources[t.Project]; ok {
		meta, err = s.Importer.Import(ctx, src)
	} else {
		meta, err = s.Importer.Describe(ctx, t.Dir)
	}
	if err != nil {
		return phase.Outcome{}, err
	}
	return phase.Outcome{Status: report.StatusSuccess, Payload: meta.Version}, nil
}

// Compile builds the project at its primary revision, falling back to
// older tags until one builds. The payload is the winning revision or the
// list of failed candidates.
type Compile struct {
	Runner      runner.Runner
	CommandLine string
	Timeout     time.Duration
	MaxSteps    int
	Cache       *toolcache.Cache // optional
	Tools       []toolcache.Tool // installed into the tree before every build
	Logger      *zap.SugaredLogger
}

// Run implements phase.Action
func (s *Compile) Run(ctx context.Context, t phase.Target) (phase.Outcome, error) {
	candidates, err := revision.RepoCandidates(t.Dir, s.MaxSteps)
	if err != nil {
		return phase.Outcome{}, err
	}

	wt, err := revision.OpenWorktree(t.Dir)
	if err != nil {
		return phase.Outcome{}, err
	}

	if err := s.ensureTools(ctx); err != nil {
		return phase.Outcome{}, err
	}

	build := func(ctx context.Context, rev string) (runner.Result, error) {
		if s.Cache != nil {
			for _, tool := range s.Tools {
				if _, err := s.Cache.Install(ctx, tool, t.Dir); err != nil {
					return runner.Result{}, err
				}
			}
		}
		cmd, err := runner.FromLine(s.CommandLine, vars(t, rev), t.Dir, s.Timeout)
		if err != nil {
			return runner.Result{}, err
		}
		return s.Runner.Run(ctx, cmd)
	}

	log := logger.OrNop(s.Logger).With(logger.FieldProject, t.Project)
	out, err := revision.NewSearch(wt, build, log).Run(ctx, candidates)
	if err != nil {
		return phase.Outcome{}, err
	}

	if out.Found() {
		return phase.Outcome{Status: report.StatusSuccess, Payload: out.Payload()}, nil
	}

	exit := 1
	if n := len(out.Attempts); n > 0 && out.Attempts[n-1].Result.ExitCode > 0 {
		exit = out.Attempts[n-1].Result.ExitCode
	}
	return phase.Outcome{ExitCode: exit, TimedOut: out.TimedOut(), Payload: out.Payload()}, nil
}

// ensureTools fetches every tool before the first candidate, so a failed
// download ends the phase instead of failing each candidate
func (s *Compile) ensureTools(ctx context.Context) error {
	if len(s.Tools) == 0 {
		return nil
	}
	if s.Cache == nil {
		return errors.Wrap(errors.ErrToolAcquisitionFailed, "tools configured but no tool cache")
	}
	for _, tool := range s.Tools {
		if _, err := s.Cache.Ensure(ctx, tool); err != nil {
			if errors.IsToolAcquisitionFailed(err) {
				return err
			}
			return errors.WithSecondaryError(
				errors.Wrapf(errors.ErrToolAcquisitionFailed, "tool %s: %s", tool.Name, err.Error()), err)
		}
	}
	return nil
}

// Command runs one configured command line in the project directory.
// Extract uses it.
type Command struct {
	Runner      runner.Runner
	CommandLine string
	Timeout     time.Duration
}

// Run implements phase.Action
func (s *Command) Run(ctx context.Context, t phase.Target) (phase.Outcome, error) {
	cmd, err := runner.FromLine(s.CommandLine, vars(t, ""), t.Dir, s.Timeout)
	if err != nil {
		return phase.Outcome{}, err
	}

	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return phase.Outcome{}, err
	}

	out := phase.Outcome{ExitCode: res.ExitCode, TimedOut: res.TimedOut}
	if !res.Succeeded() {
		out.Payload = tailLines(res.Output, payloadLines)
	}
	return out, nil
}

// Normalize cleans the extractor output of the project
type Normalize struct {
	Logger *zap.SugaredLogger
}

// Run implements phase.Action
func (s *Normalize) Run(_ context.Context, t phase.Target) (phase.Outcome, error) {
	summary, err := normalize.CleanProject(t.Dir, s.Logger)
	if err != nil {
		return phase.Outcome{}, err
	}

	tables := make([]string, 0, len(summary.Rows))
	for name, n := range summary.Rows {
		tables = append(tables, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(tables)
	return phase.Outcome{Status: report.StatusSuccess, Payload: strings.Join(tables, " ")}, nil
}

// Publish pushes the cleaned tables into the corpus database. Without
// Commit the transaction is rolled back and the phase ends UNCOMMITTED.
type Publish struct {
	Publisher *publish.Publisher
	Commit    bool
}

// Run implements phase.Action
func (s *Publish) Run(ctx context.Context, t phase.Target) (phase.Outcome, error) {
	res, err := s.Publisher.Publish(ctx, t.Dir, s.Commit)
	if err != nil {
		return phase.Outcome{}, err
	}

	payload := fmt.Sprintf("project_id=%d skipped_links=%d", res.ProjectID, res.SkippedLinks)
	if !res.Committed {
		return phase.Outcome{Status: report.StatusUncommitted, Payload: payload}, nil
	}
	return phase.Outcome{Status: report.StatusSuccess, Payload: payload}, nil
}

func vars(t phase.Target, rev string) map[string]string {
	return map[string]string{
		"project":  t.Project,
		"name":     t.Project,
		"dir":      t.Dir,
		"revision": rev,
	}
}

// tailLines keeps the last n lines of s
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
