package am

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Corpus layout
	v.SetDefault("corpus.projects_dir", "projects")
	v.SetDefault("corpus.reports_dir", "reports")
	v.SetDefault("corpus.legacy_reports_dirs", []string{})

	// Pipeline
	v.SetDefault("pipeline.max_backwards_steps", 5)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.min_free_memory_mb", 2048) // sbt builds are memory hungry
	v.SetDefault("pipeline.partial_mode", PartialModeOff)
	v.SetDefault("pipeline.partial_phases", []string{"extract"})
	v.SetDefault("pipeline.partial_evidence", map[string][]string{
		"extract": {"params.csv", "funs.csv"},
	})
	v.SetDefault("pipeline.partial_counts_as_done", false)
	v.SetDefault("pipeline.partial_satisfies_dependency", false)
	v.SetDefault("pipeline.failure_policy", FailurePolicyAutoFail)
	v.SetDefault("pipeline.timeouts.import", "30m")
	v.SetDefault("pipeline.timeouts.compile", "1h")
	v.SetDefault("pipeline.timeouts.extract", "1h")
	v.SetDefault("pipeline.timeouts.normalize", "10m")
	v.SetDefault("pipeline.timeouts.publish", "10m")

	// External commands
	v.SetDefault("commands.compile", "sbt semanticdb compile")
	v.SetDefault("commands.extract", "implicit-extractor {dir}")

	// Tools
	v.SetDefault("tool_cache.dir", filepath.Join(".cache", "tools"))
	v.SetDefault("tools", []map[string]interface{}{}) // e.g. the semanticdb sbt plugin, see `collector am init`

	// Database
	v.SetDefault("database.path", "corpus.db")
	v.SetDefault("publish.commit", false)

	// Metadata capture
	v.SetDefault("metadata.subject_extension", ".scala")
	v.SetDefault("metadata.github_stars", false)
	v.SetDefault("metadata.github_api_url", "https://api.github.com")
	v.SetDefault("metadata.requests_per_hour", 60) // unauthenticated GitHub limit

	// Aggregation
	v.SetDefault("aggregate.output_dir", ".")
	v.SetDefault("aggregate.phases", []string{"compile", "extract", "normalize", "publish"})
	v.SetDefault("aggregate.metadata_file", "project.csv")
	v.SetDefault("aggregate.results_file", "params.clean.csv")
	v.SetDefault("aggregate.paths_file", "params-funs.clean.csv")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("metadata.github_token", "COLLECTOR_GITHUB_TOKEN", "GITHUB_TOKEN")
	v.BindEnv("database.path", "COLLECTOR_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "corpus.db"
	}
	return c.Database.Path
}

// GetWorkers returns the batch worker count, at least 1
func (c *Config) GetWorkers() int {
	if c.Pipeline.Workers < 1 {
		return 1
	}
	return c.Pipeline.Workers
}

// GetAggregatePhases returns the phases shown in corpus reports
func (c *Config) GetAggregatePhases() []string {
	if len(c.Aggregate.Phases) == 0 {
		return []string{"compile", "extract", "normalize", "publish"}
	}
	return c.Aggregate.Phases
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Projects: %s, Reports: %s, Workers: %d, Database: %s}",
		c.Corpus.ProjectsDir, c.Corpus.ReportsDir, c.Pipeline.Workers, c.Database.Path)
}
