// Package importer brings projects into the corpus: it resolves a source
// (a directory of checkouts, a TOML list of repositories or a single
// remote), places each project under the projects directory and records
// its metadata.
package importer

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/implicit-corpus/collector/errors"
)

// Source is one project to import
type Source struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
	Ref  string `toml:"ref"` // tag, branch or commit checked out after cloning
}

// SourceList is the TOML source list format:
//
//	[[repository]]
//	name = "akka"
//	url  = "https://github.com/akka/akka.git"
//	ref  = "v2.5.0"
type SourceList struct {
	Repositories []Source `toml:"repository"`
}

// LoadSourceList decodes a TOML source list. Entries without a name are
// named after their URL; duplicate names are rejected.
func LoadSourceList(path string) ([]Source, error) {
	var list SourceList
	md, err := toml.DecodeFile(path, &list)
	if err != nil {
		return nil, errors.Wrapf(err, "decode source list %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("%s: unknown keys %v", path, undecoded),
			"each [[repository]] takes name, url and ref")
	}

	seen := make(map[string]bool, len(list.Repositories))
	sources := make([]Source, 0, len(list.Repositories))
	for i, src := range list.Repositories {
		if strings.TrimSpace(src.URL) == "" {
			return nil, errors.NewInvalidRequestError("%s: repository %d has no url", path, i+1)
		}
		if src.Name == "" {
			src.Name = RepoName(src.URL)
		} else {
			src.Name = sanitizeName(src.Name)
		}
		if seen[src.Name] {
			return nil, errors.NewInvalidRequestError("%s: repository name %q listed twice", path, src.Name)
		}
		seen[src.Name] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// ResolveSources expands an import argument: a .toml file is a source
// list, a local directory contributes each of its subdirectories, anything
// else is a single repository.
func ResolveSources(input string) ([]Source, error) {
	if strings.HasSuffix(input, ".toml") {
		return LoadSourceList(input)
	}

	info, err := os.Stat(input)
	if err == nil && info.IsDir() {
		return dirSources(input)
	}

	return []Source{{Name: RepoName(input), URL: input}}, nil
}

func dirSources(dir string) ([]Source, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}

	// a checkout on its own is one project, not a directory of them
	if _, err := os.Stat(filepath.Join(abs, ".git")); err == nil {
		return []Source{{Name: sanitizeName(filepath.Base(abs)), URL: abs}}, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", abs)
	}

	var sources []Source
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		sources = append(sources, Source{Name: sanitizeName(e.Name()), URL: filepath.Join(abs, e.Name())})
	}
	if len(sources) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no projects in %s", abs)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// RepoName derives a directory name from a repository URL or path
func RepoName(input string) string {
	if u, err := url.Parse(input); err == nil && u.RawQuery != "" {
		u.RawQuery = ""
		input = u.String()
	}
	input = strings.TrimPrefix(input, "git::")
	input = strings.TrimSuffix(input, "/")
	input = strings.TrimSuffix(input, "/.git")
	input = strings.TrimSuffix(input, ".git")

	for _, sep := range []string{"/", ":"} {
		if i := strings.LastIndex(input, sep); i >= 0 && i < len(input)-1 {
			input = input[i+1:]
		}
	}
	return sanitizeName(input)
}

func sanitizeName(name string) string {
	name = strings.TrimPrefix(name, "git@")
	name = strings.NewReplacer(":", "-", "@", "-", " ", "-", "/", "-", "\\", "-").Replace(name)
	name = strings.Trim(name, ".")

	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "repo"
	}
	return name
}
