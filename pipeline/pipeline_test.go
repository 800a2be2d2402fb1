package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/report"
	"github.com/implicit-corpus/collector/toolcache"
)

// recorder is an action that counts its calls and fails for chosen projects
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newRecorder(failing ...string) *recorder {
	r := &recorder{calls: map[string]int{}, fail: map[string]bool{}}
	for _, p := range failing {
		r.fail[p] = true
	}
	return r
}

func (r *recorder) Run(_ context.Context, t phase.Target) (phase.Outcome, error) {
	r.mu.Lock()
	r.calls[t.Project+"/"+string(t.Phase)]++
	fail := r.fail[t.Project+"/"+string(t.Phase)]
	r.mu.Unlock()

	if fail {
		return phase.Outcome{ExitCode: 1, Payload: "boom"}, nil
	}
	return phase.Outcome{Status: report.StatusSuccess}, nil
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func newDriver(t *testing.T, action phase.Action, workers int) (*Driver, report.Store) {
	t.Helper()
	root := t.TempDir()
	cfg := &am.Config{
		Corpus:   am.CorpusConfig{ProjectsDir: filepath.Join(root, "projects"), ReportsDir: filepath.Join(root, "reports")},
		Pipeline: am.PipelineConfig{Workers: workers},
	}
	store := report.NewFileStore(cfg.Corpus.ReportsDir, nil, nil)
	rt := NewRuntime(cfg, store, nil)

	actions := Actions{}
	for _, p := range phase.All {
		actions[p] = action
	}
	d := NewDriver(rt, phase.NewExecutor(store, phase.Policy{}, nil), actions, nil)
	d.memory = nil
	return d, store
}

func TestNewRuntime(t *testing.T) {
	cfg := &am.Config{Corpus: am.CorpusConfig{ProjectsDir: "/corpus"}}
	a := NewRuntime(cfg, nil, nil)
	b := NewRuntime(cfg, nil, nil)

	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, filepath.Join("/corpus", "cats"), a.ProjectDir("cats"))
}

func TestRunProject_StopsAtFirstFailure(t *testing.T) {
	rec := newRecorder("cats/compile")
	d, store := newDriver(t, rec, 1)

	pr := d.RunProject(context.Background(), "cats", phase.All)
	require.NoError(t, pr.Err)
	require.Len(t, pr.Results, 2)
	last, _ := pr.Last()
	assert.Equal(t, phase.Compile, last.Target.Phase)
	assert.Equal(t, report.StatusError, last.Status)
	assert.Equal(t, 2, rec.total())

	_, found, err := store.Read(report.Key{Project: "cats", Phase: "extract"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunProject_Resumes(t *testing.T) {
	rec := newRecorder()
	d, _ := newDriver(t, rec, 1)

	pr := d.RunProject(context.Background(), "cats", phase.All)
	require.NoError(t, pr.Err)
	require.Len(t, pr.Results, len(phase.All))
	assert.Equal(t, len(phase.All), rec.total())

	pr = d.RunProject(context.Background(), "cats", phase.All)
	require.NoError(t, pr.Err)
	for _, r := range pr.Results {
		assert.Equal(t, phase.Checkpoint, r.Disposition)
	}
	assert.Equal(t, len(phase.All), rec.total(), "a completed project runs nothing again")
}

func TestRunPhase_DependencyUnmet(t *testing.T) {
	rec := newRecorder()
	d, _ := newDriver(t, rec, 1)

	res, err := d.RunPhase(context.Background(), "cats", phase.Extract)
	assert.True(t, errors.IsDependencyUnmet(err))
	assert.Equal(t, phase.DependencyUnmet, res.Disposition)
	assert.Zero(t, rec.total())

	pr := d.RunProject(context.Background(), "cats", []phase.Phase{phase.Extract, phase.Normalize})
	assert.True(t, errors.IsDependencyUnmet(pr.Err))
	assert.Len(t, pr.Results, 1)
}

func TestRunPhase_NoAction(t *testing.T) {
	d, _ := newDriver(t, newRecorder(), 1)
	delete(d.actions, phase.Publish)

	_, err := d.RunPhase(context.Background(), "cats", phase.Publish)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRunBatch_IndependentProjects(t *testing.T) {
	rec := newRecorder("b/extract")
	d, store := newDriver(t, rec, 2)
	projects := []string{"a", "b", "c"}

	results := d.RunBatch(context.Background(), projects, phase.All)
	require.Len(t, results, 3)

	for i, pr := range results {
		assert.Equal(t, projects[i], pr.Project)
		assert.False(t, pr.Skipped)
		assert.NoError(t, pr.Err)
	}
	assert.Len(t, results[0].Results, 5)
	assert.Len(t, results[1].Results, 3)
	assert.Len(t, results[2].Results, 5)

	got, found, err := store.Read(report.Key{Project: "c", Phase: "publish"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, report.StatusSuccess, got.Status)
}

func TestRunBatch_CancelledStopsDispatch(t *testing.T) {
	rec := newRecorder()
	d, _ := newDriver(t, rec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := d.RunBatch(ctx, []string{"a", "b"}, phase.All)
	require.Len(t, results, 2)
	for _, pr := range results {
		assert.True(t, pr.Skipped)
		assert.ErrorIs(t, pr.Err, context.Canceled)
	}
	assert.Zero(t, rec.total())
}

func TestRunBatch_CancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int32
	action := phase.ActionFunc(func(ctx context.Context, t phase.Target) (phase.Outcome, error) {
		ran.Add(1)
		if t.Project == "a" {
			cancel()
			<-ctx.Done()
			return phase.Outcome{}, ctx.Err()
		}
		return phase.Outcome{Status: report.StatusSuccess}, nil
	})
	d, store := newDriver(t, action, 1)

	results := d.RunBatch(ctx, []string{"a", "b", "c"}, []phase.Phase{phase.Import})
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, int32(1), ran.Load())

	_, found, err := store.Read(report.Key{Project: "a", Phase: "import"})
	require.NoError(t, err)
	assert.False(t, found, "an interrupted phase leaves no report")
}

func TestLowMemory(t *testing.T) {
	d, _ := newDriver(t, newRecorder(), 1)
	d.memory = func() (uint64, uint64, error) { return 16 * 1024 * mib, 4 * 1024 * mib, nil }

	assert.False(t, d.lowMemory(2, 2048))
	assert.True(t, d.lowMemory(4, 2048))
	assert.False(t, d.lowMemory(4, 0))

	d.memory = func() (uint64, uint64, error) { return 0, 0, errors.New("no /proc") }
	assert.False(t, d.lowMemory(4, 2048))
}

type fileFetcher struct{ err error }

func (f fileFetcher) Fetch(_ context.Context, dst, _ string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, []byte("plugin"), 0o644)
}

func TestPrepare(t *testing.T) {
	tools := []am.ToolConfig{{Name: "plugin.scala", URL: "https://example.com/plugin.scala", InstallPath: "project/plugin.scala"}}

	tests := []struct {
		name    string
		fetcher toolcache.Fetcher
		noCache bool
		wantErr bool
	}{
		{name: "downloaded", fetcher: fileFetcher{}},
		{name: "download fails", fetcher: fileFetcher{err: errors.New("connection refused")}, wantErr: true},
		{name: "no cache", noCache: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDriver(t, newRecorder(), 1)
			d.rt.Config.Tools = tools
			cacheDir := t.TempDir()
			if !tt.noCache {
				d.cache = toolcache.New(cacheDir, tt.fetcher, nil)
			}

			err := d.Prepare(context.Background())
			if tt.wantErr {
				assert.True(t, errors.IsToolAcquisitionFailed(err))
				return
			}
			require.NoError(t, err)
			assert.FileExists(t, filepath.Join(cacheDir, "plugin.scala"))
		})
	}
}

func TestPrepare_NoTools(t *testing.T) {
	d, _ := newDriver(t, newRecorder(), 1)
	assert.NoError(t, d.Prepare(context.Background()))
}
