package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/display"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/phase"
)

// CompileCmd builds one project
var CompileCmd = &cobra.Command{
	Use:   "compile <project>",
	Short: "Build a project, falling back to older tags",
	Long: `Build a project at its HEAD commit. When that fails the most recent tags are
tried, newest first, up to pipeline.max_backwards_steps. The report records
the revision that built, or every candidate with the reason it failed.

Requires a successful import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(cmd, args[0], phase.Compile, envOptions{})
	},
}

// ExtractCmd runs the extractor on one project
var ExtractCmd = &cobra.Command{
	Use:   "extract <project>",
	Short: "Run the extractor on a compiled project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(cmd, args[0], phase.Extract, envOptions{})
	},
}

// NormalizeCmd cleans the extractor output of one project
var NormalizeCmd = &cobra.Command{
	Use:   "normalize <project>",
	Short: "Clean the extractor output",
	Long: `Rewrite symbol names in the extractor tables into dotted names and write
<table>.clean.csv next to every <table>.csv.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(cmd, args[0], phase.Normalize, envOptions{})
	},
}

// PublishCmd pushes one project into the corpus database
var PublishCmd = &cobra.Command{
	Use:   "publish <project>",
	Short: "Push the cleaned tables into the corpus database",
	Long: `Replace the project's rows in the corpus database inside one transaction.

Without --commit (and publish.commit unset) the transaction is rolled back
and the phase ends UNCOMMITTED, which is a dry run that runs again next time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commit, _ := cmd.Flags().GetBool("commit")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runSingle(cmd, args[0], phase.Publish, envOptions{database: true, commit: commit || cfg.Publish.Commit})
	},
}

func init() {
	PublishCmd.Flags().Bool("commit", false, "Commit the transaction")
}

// runSingle runs one phase of one project. The error is non-nil unless the
// phase ends done.
func runSingle(cmd *cobra.Command, project string, p phase.Phase, opts envOptions) error {
	e, err := newEnv(cmd, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	return runOne(ctx, cmd, e, project, p)
}

// runOne runs p for project in an existing env and prints the result.
// Compile fetches its tools first, like a batch does.
func runOne(ctx context.Context, cmd *cobra.Command, e *env, project string, p phase.Phase) error {
	if p == phase.Compile {
		if err := e.driver.Prepare(ctx); err != nil {
			return err
		}
	}

	res, err := e.driver.RunPhase(ctx, project, p)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(cmd.OutOrStdout(), newResultView(res)); err != nil {
			return err
		}
	} else {
		printResult(res)
	}

	if !e.executor.Done(res) {
		return errors.Wrapf(errors.ErrCommandFailed, "%s of %s ended %s", p, project, res.Status)
	}
	return nil
}
