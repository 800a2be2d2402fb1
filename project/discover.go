package project

import (
	"os"
	"sort"
	"strings"

	"github.com/implicit-corpus/collector/errors"
)

// Discover lists the projects under projectsDir: every non-hidden
// subdirectory, sorted by name
func Discover(projectsDir string) ([]string, error) {
	entries, err := os.ReadDir(projectsDir)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "projects directory %s does not exist", projectsDir)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read projects directory %s", projectsDir)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
