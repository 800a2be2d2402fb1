// Package toolcache downloads the tools a build needs once per machine and
// hands out the cached copy. The check-then-download step is guarded by an
// in-process mutex and by a lock file, so concurrent workers and concurrent
// collector processes share one download.
package toolcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
	"github.com/implicit-corpus/collector/logger"
)

// Tool is a file fetched from URL and copied into projects at InstallPath
type Tool struct {
	Name        string
	URL         string
	InstallPath string
}

// Fetcher places the content at src into the file dst
type Fetcher interface {
	Fetch(ctx context.Context, dst, src string) error
}

// Cache is a directory of downloaded tools
type Cache struct {
	dir     string
	fetcher Fetcher
	logger  *zap.SugaredLogger
	mu      sync.Mutex

	// StaleLockAge is how old a lock file must be before it is broken
	StaleLockAge time.Duration
	// LockPoll is the wait between lock attempts
	LockPoll time.Duration
}

// New creates a cache rooted at dir
func New(dir string, fetcher Fetcher, log *zap.SugaredLogger) *Cache {
	return &Cache{
		dir:          dir,
		fetcher:      fetcher,
		logger:       logger.OrNop(log),
		StaleLockAge: 10 * time.Minute,
		LockPoll:     100 * time.Millisecond,
	}
}

// Path is where tool lives once cached
func (c *Cache) Path(tool Tool) string {
	return filepath.Join(c.dir, tool.Name)
}

// Ensure returns the cached path of tool, downloading it first if absent
func (c *Cache) Ensure(ctx context.Context, tool Tool) (string, error) {
	if err := validateTool(tool); err != nil {
		return "", err
	}

	path := c.Path(tool)
	log := c.logger.With(logger.FieldTool, tool.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if fsutil.Exists(path) {
		log.Debugw("Tool cached", logger.FieldPath, path)
		return path, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", acquisitionError(tool, errors.Wrapf(err, "create cache dir %s", c.dir))
	}

	unlock, err := c.lock(ctx, tool)
	if err != nil {
		return "", acquisitionError(tool, err)
	}
	defer unlock()

	// Another process may have finished the download while we waited
	if fsutil.Exists(path) {
		return path, nil
	}

	log.Infow("Downloading tool", logger.FieldURL, tool.URL)
	start := time.Now()

	tmp := filepath.Join(c.dir, "."+tool.Name+".download")
	_ = os.RemoveAll(tmp)
	if err := c.fetcher.Fetch(ctx, tmp, tool.URL); err != nil {
		_ = os.RemoveAll(tmp)
		return "", acquisitionError(tool, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.RemoveAll(tmp)
		return "", acquisitionError(tool, errors.Wrap(err, "move download into cache"))
	}

	log.Infow("Tool downloaded",
		logger.FieldPath, path,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return path, nil
}

// Install copies the cached tool into projectDir at tool.InstallPath,
// downloading it first if needed
func (c *Cache) Install(ctx context.Context, tool Tool, projectDir string) (string, error) {
	src, err := c.Ensure(ctx, tool)
	if err != nil {
		return "", err
	}
	if tool.InstallPath == "" {
		return src, nil
	}

	dst := filepath.Join(projectDir, tool.InstallPath)
	if err := fsutil.CopyFile(src, dst, 0o644); err != nil {
		return "", errors.Wrapf(err, "install %s into %s", tool.Name, projectDir)
	}

	c.logger.Debugw("Tool installed", logger.FieldTool, tool.Name, logger.FieldPath, dst)
	return dst, nil
}

// lock takes the cross-process lock for tool, breaking stale locks
func (c *Cache) lock(ctx context.Context, tool Tool) (func(), error) {
	lockPath := filepath.Join(c.dir, "."+tool.Name+".lock")

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "create lock %s", lockPath)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > c.StaleLockAge {
			c.logger.Warnw("Breaking stale tool lock", logger.FieldPath, lockPath)
			_ = os.Remove(lockPath)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock %s", lockPath)
		case <-time.After(c.LockPoll):
		}
	}
}

func acquisitionError(tool Tool, err error) error {
	return errors.WithHintf(
		errors.WithSecondaryError(
			errors.Wrapf(errors.ErrToolAcquisitionFailed, "tool %s from %s: %s", tool.Name, tool.URL, err.Error()),
			err),
		"check the url of tool %q and network access; a partial download is never cached", tool.Name)
}

func validateTool(tool Tool) error {
	if tool.Name == "" || tool.URL == "" {
		return errors.NewInvalidRequestError("tool needs a name and a url, got %+v", tool)
	}
	if strings.ContainsAny(tool.Name, `/\`) || strings.HasPrefix(tool.Name, ".") {
		return errors.NewInvalidRequestError("invalid tool name %q", tool.Name)
	}
	return nil
}
