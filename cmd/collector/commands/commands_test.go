package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/implicit-corpus/collector/aggregate"
	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	collectortest "github.com/implicit-corpus/collector/internal/testing"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/pipeline"
	"github.com/implicit-corpus/collector/report"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"phase failed", errors.Wrap(errors.ErrCommandFailed, "compile of cats ended ERROR"), 1},
		{"bad usage", errors.NewInvalidRequestError("unknown phase %q", "build"), 2},
		{"dependency unmet", errors.Wrap(errors.ErrDependencyUnmet, "extract of cats requires compile"), 3},
		{"tools", errors.Wrap(errors.ErrToolAcquisitionFailed, "plugin"), 4},
		{"other", errors.New("disk full"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestResetPhases(t *testing.T) {
	assert.Equal(t, []phase.Phase{phase.Extract, phase.Normalize, phase.Publish}, resetPhases(phase.Extract, false))
	assert.Equal(t, []phase.Phase{phase.Extract}, resetPhases(phase.Extract, true))
	assert.Equal(t, phase.All, resetPhases(phase.Import, false))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "exit 2", firstLine("exit 2\nstack"))
	long := firstLine(string(make([]byte, 150)))
	assert.Len(t, long, 100)
}

// useConfig points the cached configuration at a temporary corpus. extra
// is appended to the generated collector.toml.
func useConfig(t *testing.T, extra ...string) (projects, reports string) {
	t.Helper()
	root := t.TempDir()
	projects = filepath.Join(root, "projects")
	reports = filepath.Join(root, "reports")

	path := filepath.Join(root, "collector.toml")
	content := fmt.Sprintf("[corpus]\nprojects_dir = %q\nreports_dir = %q\n", projects, reports) +
		fmt.Sprintf("[tool_cache]\ndir = %q\n", filepath.Join(root, "tools")) +
		strings.Join(extra, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := am.UseFile(path)
	require.NoError(t, err)
	t.Cleanup(am.Reset)
	return projects, reports
}

func TestReset(t *testing.T) {
	_, reports := useConfig(t)
	store := report.NewFileStore(reports, nil, nil)
	for _, p := range phase.All {
		require.NoError(t, store.Write(report.Key{Project: "cats", Phase: string(p)}, report.StatusSuccess, ""))
	}

	ResetCmd.SetArgs([]string{"cats", "normalize"})
	require.NoError(t, ResetCmd.Execute())

	for _, p := range phase.All {
		_, found, err := store.Read(report.Key{Project: "cats", Phase: string(p)})
		require.NoError(t, err)
		want := p != phase.Normalize && p != phase.Publish
		assert.Equal(t, want, found, p)
	}
}

func TestAggregateCommand(t *testing.T) {
	projects, reports := useConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(projects, "circe"), 0o755))
	store := report.NewFileStore(reports, nil, nil)
	require.NoError(t, store.Write(report.Key{Project: "cats", Phase: "compile"}, report.StatusSuccess, "v2.10.0"))

	out := t.TempDir()
	AggregateCmd.SetArgs([]string{"--out", out})
	require.NoError(t, AggregateCmd.Execute())

	long, err := os.ReadFile(filepath.Join(out, aggregate.LongFile))
	require.NoError(t, err)
	assert.Contains(t, string(long), "cats,compile,SUCCESS\n")
	assert.Contains(t, string(long), "circe,compile,UNKNOWN\n")
	assert.FileExists(t, filepath.Join(out, aggregate.ManifestFile))
	assert.FileExists(t, filepath.Join(out, aggregate.CondensedFile))
}

func TestNewBatchView(t *testing.T) {
	results := []pipeline.ProjectResult{
		{Project: "cats", Results: []phase.Result{{
			Target:      phase.Target{Project: "cats", Phase: phase.Compile},
			Disposition: phase.Ran,
			Status:      report.StatusError,
			Payload:     "exit 1",
			Duration:    1500 * time.Millisecond,
		}}},
		{Project: "circe", Skipped: true, Err: errors.New("context canceled")},
	}

	v := newBatchView("run-1", results)
	require.Len(t, v.Projects, 2)
	assert.Equal(t, resultView{Project: "cats", Phase: "compile", Disposition: "ran", Status: "ERROR", Payload: "exit 1", DurationMS: 1500}, v.Projects[0].Phases[0])
	assert.True(t, v.Projects[1].Skipped)
	assert.Equal(t, "context canceled", v.Projects[1].Error)
	assert.Empty(t, v.Projects[1].Phases)
}

func TestCompileCommand_ToolUnavailable(t *testing.T) {
	_, reports := useConfig(t, fmt.Sprintf("[[tools]]\nname = \"semanticdb.scala\"\nurl = %q\n",
		filepath.Join(t.TempDir(), "missing.scala")))
	store := report.NewFileStore(reports, nil, nil)
	require.NoError(t, store.Write(report.Key{Project: "cats", Phase: string(phase.Import)}, report.StatusSuccess, "v1"))

	CompileCmd.SetArgs([]string{"cats"})
	err := CompileCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 4, ExitCode(err))

	_, found, err := store.Read(report.Key{Project: "cats", Phase: string(phase.Compile)})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImportCommand(t *testing.T) {
	// each case returns the import argument and the projects expected to
	// end SUCCESS and ERROR
	tests := []struct {
		name    string
		setup   func(t *testing.T, good, missing string) (arg string, succeeded, failed []string)
		wantErr bool
	}{
		{
			name: "single project failure sets the exit status",
			setup: func(_ *testing.T, _, missing string) (string, []string, []string) {
				return missing, nil, []string{"missing"}
			},
			wantErr: true,
		},
		{
			name: "single project success",
			setup: func(_ *testing.T, good, _ string) (string, []string, []string) {
				return good, []string{filepath.Base(good)}, nil
			},
		},
		{
			name: "list reports failures without failing",
			setup: func(t *testing.T, good, missing string) (string, []string, []string) {
				path := filepath.Join(t.TempDir(), "repos.toml")
				content := fmt.Sprintf("[[repository]]\nname = \"good\"\nurl = %q\n\n[[repository]]\nname = \"missing\"\nurl = %q\n", good, missing)
				require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
				return path, []string{"good"}, []string{"missing"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects, reports := useConfig(t)
			good, _, _ := collectortest.CreateTagRepo(t, "v1")
			arg, succeeded, failed := tt.setup(t, good, filepath.Join(t.TempDir(), "missing"))

			ImportCmd.SetArgs([]string{arg})
			err := ImportCmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 1, ExitCode(err))
			} else {
				require.NoError(t, err)
			}

			store := report.NewFileStore(reports, nil, nil)
			for _, name := range succeeded {
				r, found, err := store.Read(report.Key{Project: name, Phase: string(phase.Import)})
				require.NoError(t, err)
				require.True(t, found, name)
				assert.Equal(t, report.StatusSuccess, r.Status)
				assert.FileExists(t, filepath.Join(projects, name, "project.csv"))
			}
			for _, name := range failed {
				r, found, err := store.Read(report.Key{Project: name, Phase: string(phase.Import)})
				require.NoError(t, err)
				require.True(t, found, name)
				assert.Equal(t, report.StatusError, r.Status)
				assert.NoDirExists(t, filepath.Join(projects, name))
			}
		})
	}
}
