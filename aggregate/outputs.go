package aggregate

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
	"github.com/implicit-corpus/collector/logger"
)

// Output file names written by WriteAll
const (
	LongFile      = "report-long.csv"
	ManifestFile  = "manifest.json"
	CondensedFile = "report-condensed.txt"
)

// ManifestEntry locates the artifacts of one project
type ManifestEntry struct {
	Metadata string `json:"metadata"`
	Results  string `json:"results"`
	Paths    string `json:"paths"`
}

// Manifest indexes the artifacts of every complete project
type Manifest struct {
	Projects []ManifestEntry `json:"projects"`
}

// WriteLong writes the long table as CSV with a project,phase,status header
func WriteLong(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project", "phase", "status"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Project, r.Phase, r.Status}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Manifest lists the projects whose metadata, results and paths files all
// exist. Others are left out silently.
func (a *Aggregator) Manifest(projects []string) Manifest {
	m := Manifest{Projects: []ManifestEntry{}}
	for _, name := range projects {
		dir := a.projectDir(name)
		entry := ManifestEntry{
			Metadata: filepath.Join(dir, a.cfg.MetadataFile),
			Results:  filepath.Join(dir, a.cfg.ResultsFile),
			Paths:    filepath.Join(dir, a.cfg.PathsFile),
		}
		if !fsutil.Exists(entry.Metadata) || !fsutil.Exists(entry.Results) || !fsutil.Exists(entry.Paths) {
			continue
		}
		m.Projects = append(m.Projects, entry)
	}
	return m
}

// WriteCondensed writes one block per project with a line per phase.
// ERROR lines carry the first line of the payload.
func WriteCondensed(w io.Writer, rows []Row) error {
	var b strings.Builder
	current := ""
	for _, r := range rows {
		if r.Project != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = r.Project
			fmt.Fprintf(&b, "%s\n", r.Project)
		}

		status := r.Status
		if !r.Known() {
			status = "unknown"
		}
		line := fmt.Sprintf("  %-10s %s", r.Phase, status)
		if first := firstLine(r.Payload); first != "" && r.Status == "ERROR" {
			line += "  " + first
		}
		b.WriteString(line + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSummary writes the per-phase counts as an aligned table
func WriteSummary(w io.Writer, counts []Counts) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %8s %8s %8s %12s %8s\n", "phase", "success", "partial", "error", "uncommitted", "unknown")
	for _, c := range counts {
		fmt.Fprintf(&b, "%-10s %8d %8d %8d %12d %8d\n", c.Phase, c.Success, c.Partial, c.Error, c.Uncommitted, c.Unknown)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Result is what WriteAll produced
type Result struct {
	Projects int
	Manifest int // entries in the manifest
	Counts   []Counts
}

// WriteAll aggregates the corpus and atomically writes the long table, the
// manifest and the condensed report into dir
func (a *Aggregator) WriteAll(dir string) (Result, error) {
	projects, err := a.Projects()
	if err != nil {
		return Result{}, err
	}
	rows := a.Rows(projects)
	manifest := a.Manifest(projects)
	res := Result{Projects: len(projects), Manifest: len(manifest.Projects), Counts: a.Summarize(rows)}

	var long bytes.Buffer
	if err := WriteLong(&long, rows); err != nil {
		return res, errors.Wrap(err, "render long table")
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return res, errors.Wrap(err, "render manifest")
	}

	var condensed bytes.Buffer
	if err := WriteCondensed(&condensed, rows); err != nil {
		return res, errors.Wrap(err, "render condensed report")
	}
	condensed.WriteString("\n")
	if err := WriteSummary(&condensed, res.Counts); err != nil {
		return res, errors.Wrap(err, "render summary")
	}

	outputs := []struct {
		name string
		data []byte
	}{
		{LongFile, long.Bytes()},
		{ManifestFile, append(manifestJSON, '\n')},
		{CondensedFile, condensed.Bytes()},
	}
	for _, out := range outputs {
		if err := fsutil.WriteFileAtomic(filepath.Join(dir, out.name), out.data, 0o644); err != nil {
			return res, err
		}
	}

	a.logger.Infow("Aggregated corpus",
		"projects", res.Projects,
		"manifest_entries", res.Manifest,
		logger.FieldDir, dir,
	)
	return res, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
