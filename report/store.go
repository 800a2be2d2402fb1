// Package report persists the per (project, phase) status records that make
// a pipeline run resumable.
//
// A report file holds the status keyword on its first line and a free-form
// payload after it. Reports are read from the current layout first and then
// from the legacy layouts; writes always go to the current layout.
package report

import (
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
	"github.com/implicit-corpus/collector/logger"
)

// Key identifies one report
type Key struct {
	Project    string
	ProjectDir string // only needed to find legacy in-tree reports
	Phase      string
}

// Report is a concluded phase outcome
type Report struct {
	Status  Status
	Payload string
	Layout  string // layout the report was read from
	Path    string
}

// Store is the durable record of phase outcomes
type Store interface {
	Read(key Key) (Report, bool, error)
	Write(key Key, status Status, payload string) error
	Delete(key Key) error
	Projects() ([]string, error)
}

// FileStore is a Store on the local file system
type FileStore struct {
	current CurrentLayout
	layouts []Layout
	logger  *zap.SugaredLogger
}

// NewFileStore creates a store rooted at reportsDir. Legacy flat reports are
// looked up in reportsDir and in every legacyDirs entry.
func NewFileStore(reportsDir string, legacyDirs []string, log *zap.SugaredLogger) *FileStore {
	current := CurrentLayout{Root: reportsDir}
	layouts := []Layout{current, InTreeLayout{}, FlatLayout{Dir: reportsDir}}
	for _, dir := range legacyDirs {
		layouts = append(layouts, FlatLayout{Dir: dir})
	}

	return &FileStore{
		current: current,
		layouts: layouts,
		logger:  logger.OrNop(log),
	}
}

// Read returns the report for key from the first layout holding a file.
// found is false when no layout has one.
func (s *FileStore) Read(key Key) (Report, bool, error) {
	if err := validateKey(key); err != nil {
		return Report{}, false, err
	}

	for _, layout := range s.layouts {
		path := layout.Path(key)
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Report{}, false, errors.Wrapf(err, "read report %s", path)
		}

		rep, err := Decode(data)
		if err != nil {
			return Report{}, true, errors.Wrapf(err, "report %s", path)
		}
		rep.Layout = layout.Name()
		rep.Path = path

		s.logger.Debugw("Report read",
			logger.FieldProject, key.Project,
			logger.FieldPhase, key.Phase,
			logger.FieldStatus, rep.Status,
			logger.FieldLayout, rep.Layout,
		)
		return rep, true, nil
	}

	return Report{}, false, nil
}

// Write records status and payload for key in the current layout,
// replacing any previous report.
func (s *FileStore) Write(key Key, status Status, payload string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !status.Valid() {
		return errors.NewInvalidRequestError("unknown status %q", string(status))
	}

	path := s.current.Path(key)
	if err := fsutil.WriteFileAtomic(path, Encode(status, payload), 0o644); err != nil {
		return errors.Wrapf(err, "write %s report for %s", key.Phase, key.Project)
	}

	s.logger.Debugw("Report written",
		logger.FieldProject, key.Project,
		logger.FieldPhase, key.Phase,
		logger.FieldStatus, status,
		logger.FieldPath, path,
	)
	return nil
}

// Delete removes the report for key from every layout
func (s *FileStore) Delete(key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}

	for _, layout := range s.layouts {
		path := layout.Path(key)
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "delete report %s", path)
		}
	}
	return nil
}

// Projects lists the projects that have at least one current-layout report
func (s *FileStore) Projects() ([]string, error) {
	root := s.current.ProjectDir("")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", root)
	}

	var projects []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := os.ReadDir(s.current.ProjectDir(entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if strings.HasSuffix(f.Name(), ".report") {
				projects = append(projects, entry.Name())
				break
			}
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// Encode renders a report file
func Encode(status Status, payload string) []byte {
	return []byte(string(status) + "\n" + payload)
}

// Decode parses a report file. Text after the status keyword on the first
// line (written by older tooling) is kept at the front of the payload.
func Decode(data []byte) (Report, error) {
	text := string(data)
	first, payload, _ := strings.Cut(text, "\n")

	status, err := ParseStatus(first)
	if err != nil {
		return Report{}, err
	}

	trimmed := strings.TrimSpace(first)
	if rest := strings.TrimSpace(trimmed[len(strings.Fields(trimmed)[0]):]); rest != "" {
		if payload == "" {
			payload = rest
		} else {
			payload = rest + "\n" + payload
		}
	}

	return Report{Status: status, Payload: payload}, nil
}

func validateKey(key Key) error {
	if key.Project == "" || key.Phase == "" {
		return errors.NewInvalidRequestError("report key needs project and phase, got %+v", key)
	}
	for _, part := range []string{key.Project, key.Phase} {
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return errors.NewInvalidRequestError("invalid report key component %q", part)
		}
	}
	return nil
}
