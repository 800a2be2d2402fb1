package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/display"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/project"
)

// RunCmd runs the pipeline over many projects
var RunCmd = &cobra.Command{
	Use:   "run [projects...]",
	Short: "Run every phase over many projects",
	Long: `Run the selected phases over every project in corpus.projects_dir (or the
projects named), pipeline.workers projects at a time.

Each project stops at its first phase that does not succeed; the others carry
on. Failures are recorded in the reports only: once the tools are in place the
command exits 0. Interrupting leaves no report for the phases in flight.

Examples:
  collector run                               # all projects, all phases
  collector run cats circe                    # two projects
  collector run --phases compile,extract -w 4`,
	RunE: runBatch,
}

func init() {
	RunCmd.Flags().StringSlice("phases", phase.Names(phase.All), "Phases to run, in any order")
	RunCmd.Flags().IntP("workers", "w", 0, "Concurrent projects (default: pipeline.workers)")
	RunCmd.Flags().Bool("commit", false, "Commit the publish transaction")
}

func runBatch(cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("phases")
	phases, err := phase.ParseAll(names)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
		cfg.Pipeline.Workers = w
	}
	commit, _ := cmd.Flags().GetBool("commit")

	usesDB := false
	for _, p := range phases {
		usesDB = usesDB || p == phase.Publish
	}

	e, err := newEnv(cmd, envOptions{database: usesDB, commit: commit || cfg.Publish.Commit})
	if err != nil {
		return err
	}
	defer e.Close()

	projects := args
	if len(projects) == 0 {
		if projects, err = project.Discover(cfg.Corpus.ProjectsDir); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := e.driver.Prepare(ctx); err != nil {
		return err
	}

	asJSON := display.ShouldOutputJSON(cmd)
	if !asJSON {
		pterm.Info.Printfln("Run %s: %d projects, phases %v", e.rt.RunID, len(projects), phase.Names(phases))
	}
	results := e.driver.RunBatch(ctx, projects, phases)
	if asJSON {
		return display.OutputJSON(cmd.OutOrStdout(), newBatchView(e.rt.RunID, results))
	}
	printBatch(results)

	if ctx.Err() != nil {
		pterm.Warning.Println("Interrupted; re-run to resume")
	}
	return nil
}
