// Package pipeline sequences phases over projects: one phase, one project
// through every phase, or a batch of projects on a bounded worker pool.
package pipeline

import (
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/report"
)

// Runtime is the context one collector invocation runs in. It is passed
// explicitly; nothing in the pipeline reads package-level state.
type Runtime struct {
	Config *am.Config
	Logger *zap.SugaredLogger
	Store  report.Store
	RunID  string
}

// NewRuntime creates a runtime with a fresh run ID
func NewRuntime(cfg *am.Config, store report.Store, log *zap.SugaredLogger) *Runtime {
	return &Runtime{
		Config: cfg,
		Logger: logger.OrNop(log),
		Store:  store,
		RunID:  uuid.NewString(),
	}
}

// ProjectDir is where project lives in the corpus
func (rt *Runtime) ProjectDir(project string) string {
	return filepath.Join(rt.Config.Corpus.ProjectsDir, project)
}
