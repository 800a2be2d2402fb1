package commands

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/db"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/importer"
	"github.com/implicit-corpus/collector/internal/httpclient"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/pipeline"
	"github.com/implicit-corpus/collector/project"
	"github.com/implicit-corpus/collector/publish"
	"github.com/implicit-corpus/collector/report"
	"github.com/implicit-corpus/collector/runner"
	"github.com/implicit-corpus/collector/steps"
	"github.com/implicit-corpus/collector/toolcache"
)

// env is everything one command invocation wires together
type env struct {
	cfg      *am.Config
	log      *zap.SugaredLogger
	store    *report.FileStore
	rt       *pipeline.Runtime
	executor *phase.Executor
	driver   *pipeline.Driver
	importer *importer.Importer
	importS  *steps.Import
	db       *sql.DB
}

type envOptions struct {
	database bool // open the corpus database for publish
	commit   bool
}

func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"), "run `collector am show` to inspect it")
	}
	return cfg, nil
}

func newEnv(cmd *cobra.Command, opts envOptions) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: logger.ComponentLogger("collector")}
	e.store = report.NewFileStore(cfg.Corpus.ReportsDir, cfg.Corpus.LegacyReportsDirs, logger.ComponentLogger("reports"))
	e.rt = pipeline.NewRuntime(cfg, e.store, e.log)

	policy, err := phase.PolicyFromConfig(cfg.Pipeline, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	e.executor = phase.NewExecutor(e.store, policy, logger.ComponentLogger("executor").With(logger.FieldRunID, e.rt.RunID))

	var stars project.StarCounter
	if cfg.Metadata.GitHubStars {
		client := httpclient.New(30*time.Second, cfg.Metadata.RequestsPerHour)
		stars = project.NewGitHubStars(client, cfg.Metadata.GitHubAPIURL, cfg.Metadata.GitHubToken)
	}
	capture := project.NewCapturer(cfg.Metadata.SubjectExtension, stars, logger.ComponentLogger("metadata"))
	e.importer = importer.New(cfg.Corpus.ProjectsDir, capture, logger.ComponentLogger("importer"))
	e.importS = &steps.Import{Importer: e.importer}

	cache := toolcache.New(cfg.ToolCache.Dir, toolcache.GetterFetcher{}, logger.ComponentLogger("toolcache"))
	exec := runner.NewExec(logger.ComponentLogger("runner"))
	timeouts := cfg.Pipeline.Timeouts

	actions := pipeline.Actions{
		phase.Import: e.importS,
		phase.Extract: &steps.Command{
			Runner:      exec,
			CommandLine: cfg.Commands.Extract,
			Timeout:     timeouts.Extract,
		},
		phase.Normalize: &steps.Normalize{Logger: logger.ComponentLogger("normalize")},
		phase.Compile: &steps.Compile{
			Runner:      exec,
			CommandLine: cfg.Commands.Compile,
			Timeout:     timeouts.Compile,
			MaxSteps:    cfg.Pipeline.MaxBackwardsSteps,
			Cache:       cache,
			Tools:       pipeline.ConfiguredTools(cfg),
			Logger:      logger.ComponentLogger("compile"),
		},
	}

	if opts.database {
		e.db, err = db.OpenWithMigrations(cfg.GetDatabasePath(), logger.ComponentLogger("db"))
		if err != nil {
			return nil, err
		}
		actions[phase.Publish] = &steps.Publish{
			Publisher: publish.New(e.db, logger.ComponentLogger("publish")),
			Commit:    opts.commit,
		}
	}

	e.driver = pipeline.NewDriver(e.rt, e.executor, actions, cache)
	return e, nil
}

// Close releases the database, if one was opened
func (e *env) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// signalContext is cancelled on interrupt or termination so the phase in
// flight leaves no report behind
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
