package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/implicit-corpus/collector/am"
	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage collector configuration",
	Long: `Display and manage collector configuration.

Configuration sources (in order of precedence):
1. --config <file> (replaces 3-5)
2. Environment variables (COLLECTOR_* prefix, e.g. COLLECTOR_PIPELINE_WORKERS)
3. Project config (./collector.toml, searched upwards)
4. User config (~/.collector/collector.toml)
5. System config (/etc/collector/collector.toml)
6. Default values

Examples:
  collector am show                  # Show current configuration
  collector am show --format json    # Show configuration in JSON format
  collector am init                  # Write ./collector.toml with every default`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file holding every default",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files exist",
	RunE:  runAmWhere,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file (kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# collector configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# collector configuration\n%s", string(data))

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.ProjectConfigName
	if len(args) == 1 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	if err := am.WriteDefault(path, force); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote %s", path)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration cascade (later overrides earlier):")
	for i, path := range am.ConfigPaths() {
		state := "missing"
		if fsutil.Exists(path) {
			state = "found"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %-60s %s\n", i+1, path, state)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "  then COLLECTOR_* environment variables")
	return nil
}
