package commands

import (
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/phase"
	"github.com/implicit-corpus/collector/report"
)

// ResetCmd forgets phase outcomes
var ResetCmd = &cobra.Command{
	Use:   "reset <project> <phase>",
	Short: "Forget a phase outcome so it runs again",
	Long: `Delete the report of <phase> for <project>. Reports of the phases after it are
deleted too, since they were derived from the outcome being forgotten; pass
--only to keep them. Matching legacy reports are removed as well, otherwise
they would be read back as checkpoints.`,
	Args: cobra.ExactArgs(2),
	RunE: runReset,
}

func init() {
	ResetCmd.Flags().Bool("only", false, "Delete only the named phase")
}

func runReset(cmd *cobra.Command, args []string) error {
	project := args[0]
	from, err := phase.Parse(args[1])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := report.NewFileStore(cfg.Corpus.ReportsDir, cfg.Corpus.LegacyReportsDirs, logger.ComponentLogger("reports"))

	only, _ := cmd.Flags().GetBool("only")
	for _, p := range resetPhases(from, only) {
		key := report.Key{Project: project, ProjectDir: filepath.Join(cfg.Corpus.ProjectsDir, project), Phase: string(p)}
		if err := store.Delete(key); err != nil {
			return err
		}
		pterm.Info.Printfln("Reset %s %s", p, project)
	}
	return nil
}

// resetPhases is from and, unless only, every phase after it
func resetPhases(from phase.Phase, only bool) []phase.Phase {
	if only {
		return []phase.Phase{from}
	}
	for i, p := range phase.All {
		if p == from {
			return phase.All[i:]
		}
	}
	return nil
}
