package report

import (
	"path/filepath"
)

// Layout maps a report key to a file path. An empty path means the layout
// cannot hold the key (e.g. an in-tree layout without a project directory).
type Layout interface {
	Name() string
	Path(key Key) string
}

// CurrentLayout is <root>/v2/<project>/<phase>.report, the only layout written
type CurrentLayout struct {
	Root string
}

func (l CurrentLayout) Name() string { return "current" }

func (l CurrentLayout) Path(key Key) string {
	return filepath.Join(l.ProjectDir(key.Project), key.Phase+".report")
}

// ProjectDir is the directory holding every report of one project
func (l CurrentLayout) ProjectDir(project string) string {
	return filepath.Join(l.Root, "v2", project)
}

// InTreeLayout is the legacy <project_dir>/.reports/<phase>.txt
type InTreeLayout struct{}

func (InTreeLayout) Name() string { return "legacy-in-tree" }

func (InTreeLayout) Path(key Key) string {
	if key.ProjectDir == "" {
		return ""
	}
	return filepath.Join(key.ProjectDir, ".reports", key.Phase+".txt")
}

// FlatLayout is the legacy <dir>/<project>-<phase>.txt
type FlatLayout struct {
	Dir string
}

func (l FlatLayout) Name() string { return "legacy-flat" }

func (l FlatLayout) Path(key Key) string {
	if l.Dir == "" {
		return ""
	}
	return filepath.Join(l.Dir, key.Project+"-"+key.Phase+".txt")
}
