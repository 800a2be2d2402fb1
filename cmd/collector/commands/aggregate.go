package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/aggregate"
	"github.com/implicit-corpus/collector/display"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/report"
)

// AggregateCmd summarises every report of the corpus
var AggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Summarise all reports into tables and a manifest",
	Long: `Write report-long.csv (project,phase,status), manifest.json (artifact paths of
every project that has all of them) and report-condensed.txt into
aggregate.output_dir. Missing or unreadable reports count as unknown.

With --watch the outputs are regenerated whenever a report changes, until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runAggregate,
}

func init() {
	AggregateCmd.Flags().Bool("watch", false, "Regenerate the outputs whenever reports change")
	AggregateCmd.Flags().StringP("out", "o", "", "Output directory (default: aggregate.output_dir)")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cfg.Aggregate.OutputDir
	if o, _ := cmd.Flags().GetString("out"); o != "" {
		out = o
	}

	store := report.NewFileStore(cfg.Corpus.ReportsDir, cfg.Corpus.LegacyReportsDirs, logger.ComponentLogger("reports"))
	agg := aggregate.New(store, cfg.Corpus.ProjectsDir, cfg.Aggregate, logger.ComponentLogger("aggregate"))

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		root := report.CurrentLayout{Root: cfg.Corpus.ReportsDir}.ProjectDir("")
		pterm.Info.Printfln("Watching %s, writing to %s (Ctrl-C to stop)", root, out)
		return agg.Watch(ctx, root, out, aggregate.DefaultDebounce, func(res aggregate.Result, err error) {
			if err == nil {
				pterm.Info.Printfln("Regenerated: %d projects, %d in manifest", res.Projects, res.Manifest)
			}
		})
	}

	res, err := agg.WriteAll(out)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), res)
	}
	printCounts(res)
	return nil
}

func printCounts(res aggregate.Result) {
	rows := pterm.TableData{{"Phase", "Success", "Partial", "Error", "Uncommitted", "Unknown"}}
	for _, c := range res.Counts {
		rows = append(rows, []string{
			c.Phase,
			fmt.Sprint(c.Success), fmt.Sprint(c.Partial), fmt.Sprint(c.Error),
			fmt.Sprint(c.Uncommitted), fmt.Sprint(c.Unknown),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	pterm.Success.Printfln("%d projects, %d in manifest", res.Projects, res.Manifest)
}
