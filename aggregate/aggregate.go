// Package aggregate turns the per (project, phase) reports of a whole corpus
// into a long status table, an artifact manifest, a condensed human report
// and per-phase counts.
//
// Aggregation never fails on a project: absent, unreadable or malformed
// reports are "unknown".
package aggregate

import (
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/normalize"
	"github.com/implicit-corpus/collector/project"
	"github.com/implicit-corpus/collector/report"
)

// Unknown stands in for an absent or unreadable report in the long table
const Unknown = "UNKNOWN"

// Row is one line of the long table
type Row struct {
	Project string
	Phase   string
	Status  string // status keyword, or Unknown
	Payload string
}

// Known reports whether the row came from a readable report
func (r Row) Known() bool {
	return r.Status != Unknown
}

// Aggregator reads every report of a corpus
type Aggregator struct {
	store       report.Store
	projectsDir string
	cfg         am.AggregateConfig
	logger      *zap.SugaredLogger
}

// New creates an aggregator over the projects in projectsDir and the
// projects store has reports for
func New(store report.Store, projectsDir string, cfg am.AggregateConfig, log *zap.SugaredLogger) *Aggregator {
	if len(cfg.Phases) == 0 {
		cfg.Phases = []string{"compile", "extract", "normalize", "publish"}
	}
	if cfg.MetadataFile == "" {
		cfg.MetadataFile = project.MetadataFile
	}
	if cfg.ResultsFile == "" {
		cfg.ResultsFile = "params" + normalize.CleanSuffix
	}
	if cfg.PathsFile == "" {
		cfg.PathsFile = "params-funs" + normalize.CleanSuffix
	}
	return &Aggregator{store: store, projectsDir: projectsDir, cfg: cfg, logger: logger.OrNop(log)}
}

// Phases returns the phases aggregated, in order
func (a *Aggregator) Phases() []string {
	return a.cfg.Phases
}

// Projects is the union of the project directories and the projects with
// reports, sorted
func (a *Aggregator) Projects() ([]string, error) {
	seen := make(map[string]bool)

	dirs, err := project.Discover(a.projectsDir)
	if err != nil && !errors.IsNotFoundError(err) {
		return nil, err
	}
	for _, name := range dirs {
		seen[name] = true
	}

	reported, err := a.store.Projects()
	if err != nil {
		return nil, err
	}
	for _, name := range reported {
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Rows returns one row per (project, phase), projects sorted and phases in
// configured order
func (a *Aggregator) Rows(projects []string) []Row {
	rows := make([]Row, 0, len(projects)*len(a.cfg.Phases))
	for _, name := range projects {
		for _, ph := range a.cfg.Phases {
			rows = append(rows, a.row(name, ph))
		}
	}
	return rows
}

func (a *Aggregator) row(name, ph string) Row {
	row := Row{Project: name, Phase: ph, Status: Unknown}
	key := report.Key{Project: name, ProjectDir: a.projectDir(name), Phase: ph}

	r, found, err := a.store.Read(key)
	if err != nil {
		a.logger.Debugw("Unreadable report counted as unknown",
			logger.FieldProject, name, logger.FieldPhase, ph, logger.FieldError, err)
		return row
	}
	if !found {
		return row
	}

	row.Status = r.Status.String()
	row.Payload = r.Payload
	return row
}

func (a *Aggregator) projectDir(name string) string {
	if a.projectsDir == "" {
		return ""
	}
	return filepath.Join(a.projectsDir, name)
}

// Counts tallies one phase across the corpus
type Counts struct {
	Phase       string
	Success     int
	Partial     int
	Error       int
	Uncommitted int
	Unknown     int
}

// Total is the number of projects counted
func (c Counts) Total() int {
	return c.Success + c.Partial + c.Error + c.Uncommitted + c.Unknown
}

// Summarize counts rows per phase, in the aggregator's phase order
func (a *Aggregator) Summarize(rows []Row) []Counts {
	index := make(map[string]int, len(a.cfg.Phases))
	counts := make([]Counts, len(a.cfg.Phases))
	for i, ph := range a.cfg.Phases {
		index[ph] = i
		counts[i].Phase = ph
	}

	for _, r := range rows {
		i, ok := index[r.Phase]
		if !ok {
			continue
		}
		c := &counts[i]
		switch strings.ToUpper(r.Status) {
		case string(report.StatusSuccess):
			c.Success++
		case string(report.StatusPartial):
			c.Partial++
		case string(report.StatusError):
			c.Error++
		case string(report.StatusUncommitted):
			c.Uncommitted++
		default:
			c.Unknown++
		}
	}
	return counts
}
