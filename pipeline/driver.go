package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/toolcache"
)

// Actions maps each phase to the action that performs it
type Actions map[phase.Phase]phase.Action

// ProjectResult is what one project went through
type ProjectResult struct {
	Project string
	Results []phase.Result // one per phase reached, in order
	Err     error          // why the project stopped early, if it did
	Skipped bool           // never dispatched
}

// Last returns the result of the last phase reached
func (pr ProjectResult) Last() (phase.Result, bool) {
	if len(pr.Results) == 0 {
		return phase.Result{}, false
	}
	return pr.Results[len(pr.Results)-1], true
}

// Driver runs phases through an executor
type Driver struct {
	rt       *Runtime
	executor *phase.Executor
	actions  Actions
	cache    *toolcache.Cache
	logger   *zap.SugaredLogger
	memory   memoryStats
}

// NewDriver creates a driver. cache may be nil when no tools are configured.
func NewDriver(rt *Runtime, executor *phase.Executor, actions Actions, cache *toolcache.Cache) *Driver {
	return &Driver{
		rt:       rt,
		executor: executor,
		actions:  actions,
		cache:    cache,
		logger:   rt.Logger.With(logger.FieldRunID, rt.RunID),
		memory:   virtualMemory,
	}
}

// ConfiguredTools converts the [[tools]] entries of cfg
func ConfiguredTools(cfg *am.Config) []toolcache.Tool {
	tools := make([]toolcache.Tool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		tools[i] = toolcache.Tool{Name: t.Name, URL: t.URL, InstallPath: t.InstallPath}
	}
	return tools
}

// Prepare places every configured tool in the cache. Any failure wraps
// ErrToolAcquisitionFailed; a batch must not start without its tools.
func (d *Driver) Prepare(ctx context.Context) error {
	tools := ConfiguredTools(d.rt.Config)
	if len(tools) == 0 {
		return nil
	}
	if d.cache == nil {
		return errors.Wrap(errors.ErrToolAcquisitionFailed, "tools configured but no tool cache")
	}

	for _, tool := range tools {
		if _, err := d.cache.Ensure(ctx, tool); err != nil {
			if errors.IsToolAcquisitionFailed(err) {
				return err
			}
			return errors.WithSecondaryError(
				errors.Wrapf(errors.ErrToolAcquisitionFailed, "tool %s: %s", tool.Name, err.Error()), err)
		}
	}
	d.logger.Infow("Tools ready", logger.FieldCount, len(tools))
	return nil
}

// RunPhase runs one phase of one project
func (d *Driver) RunPhase(ctx context.Context, project string, p phase.Phase) (phase.Result, error) {
	action, ok := d.actions[p]
	if !ok {
		return phase.Result{}, errors.NewInvalidRequestError("no action for phase %s", p)
	}
	target := phase.Target{Project: project, Dir: d.rt.ProjectDir(project), Phase: p}
	return d.executor.Execute(ctx, target, action)
}

// RunProject runs phases in order for one project and stops at the first
// phase that leaves the project unable to continue
func (d *Driver) RunProject(ctx context.Context, project string, phases []phase.Phase) ProjectResult {
	pr := ProjectResult{Project: project}
	for _, p := range phases {
		res, err := d.RunPhase(ctx, project, p)
		if res.Disposition != "" {
			pr.Results = append(pr.Results, res)
		}
		if err != nil {
			pr.Err = err
			return pr
		}
		if !d.executor.CanContinue(res) {
			return pr
		}
	}
	return pr
}

// RunBatch runs every project through phases on the configured number of
// workers. A failing project never stops the others. Cancelling ctx stops
// dispatch; projects never dispatched come back Skipped. Results are in
// the order of projects.
func (d *Driver) RunBatch(ctx context.Context, projects []string, phases []phase.Phase) []ProjectResult {
	workers := d.rt.Config.GetWorkers()
	if workers > len(projects) && len(projects) > 0 {
		workers = len(projects)
	}
	d.lowMemory(workers, d.rt.Config.Pipeline.MinFreeMemoryMB)

	ctx = logger.WithRunID(ctx, d.rt.RunID)
	log := d.logger.With(logger.FieldWorkers, workers, logger.FieldCount, len(projects))
	log.Infow("Batch starting", "phases", phase.Names(phases))
	start := time.Now()

	results := make([]ProjectResult, len(projects))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = d.RunProject(logger.WithProject(ctx, projects[i]), projects[i], phases)
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range projects {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(projects); i++ {
		results[i] = ProjectResult{Project: projects[i], Skipped: true, Err: ctx.Err()}
	}

	log.Infow("Batch finished",
		"dispatched", dispatched,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return results
}
