// Package project describes the projects of a corpus: where they live, the
// metadata record captured at import and the facts derived from their
// repositories.
package project

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
)

// MetadataFile is the per-project metadata record written at import
const MetadataFile = "project.csv"

// MetadataColumns is the header of the metadata record, in order
var MetadataColumns = []string{
	"name", "version", "last_commit", "url", "total_loc",
	"scala_loc", "reponame", "gh_stars", "build_systems",
}

// Metadata is the record describing one imported project
type Metadata struct {
	Name         string
	Version      string // tag at HEAD, newest tag, or short commit hash
	LastCommit   string
	URL          string
	TotalLOC     int
	SubjectLOC   int // lines in files with the configured subject extension
	RepoName     string
	Stars        int
	BuildSystems []string
}

func (m Metadata) row() []string {
	return []string{
		m.Name,
		m.Version,
		m.LastCommit,
		m.URL,
		strconv.Itoa(m.TotalLOC),
		strconv.Itoa(m.SubjectLOC),
		m.RepoName,
		strconv.Itoa(m.Stars),
		strings.Join(m.BuildSystems, "|"),
	}
}

// WriteMetadata writes m to dir/project.csv, replacing any previous record
func WriteMetadata(dir string, m Metadata) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(MetadataColumns); err != nil {
		return errors.Wrap(err, "encode metadata header")
	}
	if err := w.Write(m.row()); err != nil {
		return errors.Wrap(err, "encode metadata row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "encode metadata")
	}

	return fsutil.WriteFileAtomic(filepath.Join(dir, MetadataFile), buf.Bytes(), 0o644)
}

// ReadMetadata reads dir/project.csv. Records written by older tools may
// lack columns; those fields are left zero and their names returned in
// missing. A missing file wraps ErrNotFound.
func ReadMetadata(dir string) (m Metadata, missing []string, err error) {
	path := filepath.Join(dir, MetadataFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil, errors.Wrapf(errors.ErrNotFound, "no metadata record at %s", path)
	}
	if err != nil {
		return m, nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	return decodeMetadata(f, path)
}

// MissingColumnsError wraps ErrConfigurationMissing for the columns a
// record lacked, or returns nil when none are missing
func MissingColumnsError(path string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return errors.Wrapf(errors.ErrConfigurationMissing, "%s lacks %s", path, strings.Join(missing, ", "))
}

func decodeMetadata(r io.Reader, path string) (m Metadata, missing []string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return m, nil, errors.Wrapf(err, "read header of %s", path)
	}
	values, err := cr.Read()
	if err != nil {
		return m, nil, errors.Wrapf(err, "read record of %s", path)
	}

	fields := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(values) {
			fields[strings.TrimSpace(name)] = values[i]
		}
	}

	get := func(name string) string {
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	}
	getInt := func(name string) (int, error) {
		v := strings.TrimSpace(get(name))
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Wrapf(errors.ErrInvalidRequest, "%s: column %s is not a number: %q", path, name, v)
		}
		return n, nil
	}

	m.Name = get("name")
	m.Version = get("version")
	m.LastCommit = get("last_commit")
	m.URL = get("url")
	if m.TotalLOC, err = getInt("total_loc"); err != nil {
		return m, nil, err
	}
	if m.SubjectLOC, err = getInt("scala_loc"); err != nil {
		return m, nil, err
	}
	m.RepoName = get("reponame")
	if m.Stars, err = getInt("gh_stars"); err != nil {
		return m, nil, err
	}
	if systems := get("build_systems"); systems != "" {
		m.BuildSystems = strings.Split(systems, "|")
	}

	return m, missing, nil
}
