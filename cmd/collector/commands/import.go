package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/implicit-corpus/collector/importer"
	"github.com/implicit-corpus/collector/phase"
)

// ImportCmd acquires projects into the corpus
var ImportCmd = &cobra.Command{
	Use:   "import <source>",
	Short: "Acquire projects and capture their metadata",
	Long: `Bring projects into corpus.projects_dir and write their project.csv.

<source> is one of:
  repos.toml        a list of [[repository]] entries with name, url and ref
  ./some/checkout   a single local repository
  ./checkouts       a directory whose subdirectories are repositories
  <url>             a remote repository (github.com/..., git::..., https://...)

An import that already succeeded is a checkpoint: neither the directory nor
project.csv is touched again. Use ` + "`collector reset <project> import`" + ` to
capture the metadata anew. A project directory that exists without a
successful import is reused as is and only described.

With a single project the exit status reflects its import. With a list or
a directory of checkouts every project is attempted and failures are only
reported, so the exit status is zero.

Examples:
  collector import repos.toml
  collector import github.com/typelevel/cats`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	sources, err := importer.ResolveSources(args[0])
	if err != nil {
		return err
	}

	e, err := newEnv(cmd, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	e.importS.Sources = make(map[string]importer.Source, len(sources))
	for _, src := range sources {
		e.importS.Sources[src.Name] = src
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if len(sources) == 1 {
		return runOne(ctx, cmd, e, sources[0].Name, phase.Import)
	}

	var failed []string
	for _, src := range sources {
		res, err := e.driver.RunPhase(ctx, src.Name, phase.Import)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			pterm.Error.Printfln("import %s: %v", src.Name, err)
			failed = append(failed, src.Name)
			continue
		}
		printResult(res)
		if !e.executor.Done(res) {
			failed = append(failed, src.Name)
		}
	}

	if len(failed) > 0 {
		pterm.Warning.Printfln("%d of %d imports did not succeed: %s", len(failed), len(sources), strings.Join(failed, ", "))
	}
	return nil
}
