package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/cmd/collector/commands"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
)

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Collect a corpus of builds and analyses, resumably",
	Long: `collector - Run a corpus of source repositories through import, compile,
extract, normalize and publish.

Every (project, phase) outcome is recorded as a report. Re-running a command
skips work that already concluded and never retries a phase whose predecessor
did not succeed.

Available commands:
  import     - Acquire projects and capture their metadata
  compile    - Build a project, falling back to older tags
  extract    - Run the extractor on a compiled project
  normalize  - Clean the extractor output
  publish    - Push the cleaned tables into the corpus database
  run        - Run every phase over many projects
  aggregate  - Summarise all reports into tables and a manifest
  reset      - Forget a phase outcome so it runs again
  am         - Manage collector configuration

Examples:
  collector import repos.toml       # Clone every listed repository
  collector compile cats            # Build one project
  collector run -w 4                # Whole corpus, four projects at a time
  collector aggregate --watch       # Keep the reports up to date during a run`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if _, err := am.UseFile(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default: collector.toml cascade)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Log JSON to stderr")
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON (also COLLECTOR_OUTPUT=json)")

	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.CompileCmd)
	rootCmd.AddCommand(commands.ExtractCmd)
	rootCmd.AddCommand(commands.NormalizeCmd)
	rootCmd.AddCommand(commands.PublishCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.AggregateCmd)
	rootCmd.AddCommand(commands.ResetCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(commands.ExitCode(err))
	}
}
