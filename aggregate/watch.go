package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
)

// DefaultDebounce is how long report changes must settle before the outputs
// are regenerated
const DefaultDebounce = 500 * time.Millisecond

// Watch writes the outputs into outDir, then again every time the reports
// under root change, until ctx is done. root is the current report layout
// directory; project directories created later are picked up. onUpdate,
// if set, sees every regeneration.
func (a *Aggregator) Watch(ctx context.Context, root, outDir string, debounce time.Duration, onUpdate func(Result, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", root)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer w.Close()

	if err := watchTree(w, root); err != nil {
		return err
	}

	update := func() {
		res, err := a.WriteAll(outDir)
		if err != nil {
			a.logger.Warnw("Aggregation failed", logger.FieldError, err)
		}
		if onUpdate != nil {
			onUpdate(res, err)
		}
	}
	update()
	a.logger.Infow("Watching reports", logger.FieldDir, root)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.Add(event.Name); err != nil {
						a.logger.Warnw("Cannot watch new project directory", logger.FieldPath, event.Name, logger.FieldError, err)
					}
				}
			}
			if event.Op == fsnotify.Chmod || isTempFile(event.Name) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			update()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warnw("Report watcher error", logger.FieldError, err)
		}
	}
}

// watchTree adds root and its immediate subdirectories
func watchTree(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return errors.Wrapf(err, "failed to watch %s", root)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return errors.Wrapf(err, "list %s", root)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if err := w.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}
	return nil
}

// isTempFile matches the temp files of atomic writes
func isTempFile(path string) bool {
	return strings.Contains(filepath.Base(path), ".tmp.")
}
