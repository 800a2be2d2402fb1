package project

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/revision"
)

// buildMarkers maps marker files at the project root to build systems
var buildMarkers = []struct {
	file   string
	system string
}{
	{"build.sbt", "sbt"},
	{"pom.xml", "maven"},
	{"build.gradle", "gradle"},
	{"build.gradle.kts", "gradle"},
	{"build.sc", "mill"},
	{"Cargo.toml", "cargo"},
	{"package.json", "npm"},
}

// skippedDirs are never walked when counting lines
var skippedDirs = map[string]bool{
	".git":         true,
	"target":       true,
	"node_modules": true,
	".bloop":       true,
	".metals":      true,
	".bsp":         true,
	".idea":        true,
}

// Capturer derives a project's metadata record from its working tree
type Capturer struct {
	SubjectExtension string
	Stars            StarCounter // optional
	logger           *zap.SugaredLogger
}

// NewCapturer creates a capturer counting subjectExt files separately
func NewCapturer(subjectExt string, stars StarCounter, log *zap.SugaredLogger) *Capturer {
	return &Capturer{SubjectExtension: subjectExt, Stars: stars, logger: logger.OrNop(log)}
}

// Capture reads origin, HEAD and version from the repository at dir and
// counts its lines. A missing origin remote or a failed star lookup leaves
// the field empty and is logged; a directory that is not a repository is
// an error.
func (c *Capturer) Capture(ctx context.Context, dir string) (Metadata, error) {
	m := Metadata{Name: filepath.Base(dir)}
	log := c.logger.With(logger.FieldProject, m.Name)

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return m, errors.Wrapf(err, "open repository %s", dir)
	}

	if m.LastCommit, err = revision.HeadCommit(repo); err != nil {
		return m, err
	}

	if m.Version, err = Version(repo, m.LastCommit); err != nil {
		return m, err
	}

	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		m.URL = remote.Config().URLs[0]
	} else {
		log.Debugw("No origin remote", logger.FieldError, err)
	}

	if host, slug, ok := ParseRepoURL(m.URL); ok {
		m.RepoName = slug
		if c.Stars != nil && host == "github.com" {
			stars, err := c.Stars.Stars(ctx, slug)
			if err != nil {
				log.Warnw("Star count unavailable", "repo", slug, logger.FieldError, err)
			} else {
				m.Stars = stars
			}
		}
	}

	if m.TotalLOC, m.SubjectLOC, err = CountLines(dir, c.SubjectExtension); err != nil {
		return m, err
	}
	m.BuildSystems = BuildSystems(dir)

	log.Debugw("Captured metadata",
		"version", m.Version,
		"total_loc", m.TotalLOC,
		"subject_loc", m.SubjectLOC,
		"build_systems", m.BuildSystems)

	return m, nil
}

// Version names the checked-out revision: a tag pointing at head, else
// the newest tag, else the abbreviated commit hash
func Version(repo *git.Repository, head string) (string, error) {
	tags, err := revision.TagsNewestFirst(repo)
	if err != nil {
		return "", err
	}
	for _, t := range tags {
		if t.Commit.String() == head {
			return t.Name, nil
		}
	}
	if len(tags) > 0 {
		return tags[0].Name, nil
	}
	if len(head) > 7 {
		return head[:7], nil
	}
	return head, nil
}

// CountLines counts lines of text files under dir, in total and for files
// ending in subjectExt. Build output and VCS directories are skipped, as
// are files that look binary.
func CountLines(dir, subjectExt string) (total, subject int, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		n, err := countFileLines(path)
		if err != nil {
			return err
		}
		total += n
		if subjectExt != "" && strings.HasSuffix(d.Name(), subjectExt) {
			subject += n
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "count lines in %s", dir)
	}
	return total, subject, nil
}

func countFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(8000)
	if bytes.IndexByte(head, 0) >= 0 {
		return 0, nil
	}

	lines := 0
	buf := make([]byte, 32*1024)
	last := byte('\n')
	for {
		n, err := br.Read(buf)
		if n > 0 {
			lines += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		lines++
	}
	return lines, nil
}

// BuildSystems detects build systems from marker files at the project root
func BuildSystems(dir string) []string {
	seen := make(map[string]bool)
	var systems []string
	for _, m := range buildMarkers {
		if seen[m.system] {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			seen[m.system] = true
			systems = append(systems, m.system)
		}
	}
	sort.Strings(systems)
	return systems
}
