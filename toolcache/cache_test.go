package toolcache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/implicit-corpus/collector/errors"
)

// countingFetcher writes content after a short delay and counts calls
type countingFetcher struct {
	calls   atomic.Int32
	content string
	err     error
}

func (f *countingFetcher) Fetch(ctx context.Context, dst, src string) error {
	f.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	if f.err != nil {
		// leave a partial file behind like a broken download would
		_ = os.WriteFile(dst, []byte("partial"), 0o644)
		return f.err
	}
	return os.WriteFile(dst, []byte(f.content), 0o644)
}

var plugin = Tool{
	Name:        "SemanticdbConfigure.scala",
	URL:         "https://example.invalid/SemanticdbConfigure.scala",
	InstallPath: filepath.Join("project", "SemanticdbConfigure.scala"),
}

func TestEnsure_DownloadsOnce(t *testing.T) {
	fetcher := &countingFetcher{content: "addCompilerPlugin(...)"}
	cache := New(t.TempDir(), fetcher, nil)

	path, err := cache.Ensure(context.Background(), plugin)
	require.NoError(t, err)
	assert.Equal(t, cache.Path(plugin), path)

	_, err = cache.Ensure(context.Background(), plugin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestEnsure_ConcurrentCallersShareOneDownload(t *testing.T) {
	fetcher := &countingFetcher{content: "plugin"}
	dir := t.TempDir()

	// Two caches over one directory stand in for two processes
	caches := []*Cache{New(dir, fetcher, nil), New(dir, fetcher, nil)}
	for _, c := range caches {
		c.LockPoll = 5 * time.Millisecond
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(c *Cache) {
			defer wg.Done()
			_, err := c.Ensure(context.Background(), plugin)
			errs <- err
		}(caches[i%2])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, fetcher.calls.Load())

	data, err := os.ReadFile(filepath.Join(dir, plugin.Name))
	require.NoError(t, err)
	assert.Equal(t, "plugin", string(data))
}

func TestEnsure_FailureIsToolAcquisitionFailed(t *testing.T) {
	fetcher := &countingFetcher{err: fmt.Errorf("connection refused")}
	cache := New(t.TempDir(), fetcher, nil)

	_, err := cache.Ensure(context.Background(), plugin)
	require.Error(t, err)
	assert.True(t, errors.IsToolAcquisitionFailed(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, cache.Path(plugin), "a failed download is never cached")

	// The next attempt downloads again
	fetcher.err = nil
	fetcher.content = "ok"
	_, err = cache.Ensure(context.Background(), plugin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestEnsure_StaleLockIsBroken(t *testing.T) {
	dir := t.TempDir()
	fetcher := &countingFetcher{content: "x"}
	cache := New(dir, fetcher, nil)
	cache.StaleLockAge = time.Millisecond

	lock := filepath.Join(dir, "."+plugin.Name+".lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	_, err := cache.Ensure(context.Background(), plugin)
	require.NoError(t, err)
	assert.NoFileExists(t, lock)
}

func TestEnsure_HeldLockRespectsContext(t *testing.T) {
	dir := t.TempDir()
	cache := New(dir, &countingFetcher{content: "x"}, nil)
	cache.LockPoll = 5 * time.Millisecond

	require.NoError(t, os.WriteFile(filepath.Join(dir, "."+plugin.Name+".lock"), nil, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := cache.Ensure(ctx, plugin)
	require.Error(t, err)
	assert.True(t, errors.IsToolAcquisitionFailed(err))
}

func TestEnsure_InvalidTool(t *testing.T) {
	cache := New(t.TempDir(), &countingFetcher{}, nil)

	for _, tool := range []Tool{{URL: "x"}, {Name: "x"}, {Name: "../x", URL: "x"}} {
		_, err := cache.Ensure(context.Background(), tool)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "%+v", tool)
	}
}

func TestInstall(t *testing.T) {
	cache := New(t.TempDir(), &countingFetcher{content: "plugin source"}, nil)
	projectDir := t.TempDir()

	dst, err := cache.Install(context.Background(), plugin, projectDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "project", "SemanticdbConfigure.scala"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "plugin source", string(data))
}

func TestGetterFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "object SemanticdbConfigure")
	}))
	defer srv.Close()

	cache := New(t.TempDir(), GetterFetcher{}, nil)
	path, err := cache.Ensure(context.Background(), Tool{Name: "plugin.scala", URL: srv.URL + "/plugin.scala"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "object SemanticdbConfigure", string(data))
}

func TestGetterFetcher_LocalFileIsCopied(t *testing.T) {
	src := filepath.Join(t.TempDir(), "plugin.scala")
	require.NoError(t, os.WriteFile(src, []byte("local"), 0o644))

	cache := New(t.TempDir(), GetterFetcher{}, nil)
	path, err := cache.Ensure(context.Background(), Tool{Name: "plugin.scala", URL: src})
	require.NoError(t, err)

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSymlink, "cache entry must be a real file")
}
