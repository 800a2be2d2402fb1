package am

import "time"

// Config represents the collector configuration
type Config struct {
	Corpus    CorpusConfig    `mapstructure:"corpus" toml:"corpus"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" toml:"pipeline"`
	Commands  CommandsConfig  `mapstructure:"commands" toml:"commands"`
	ToolCache ToolCacheConfig `mapstructure:"tool_cache" toml:"tool_cache"`
	Tools     []ToolConfig    `mapstructure:"tools" toml:"tools"`
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Publish   PublishConfig   `mapstructure:"publish" toml:"publish"`
	Metadata  MetadataConfig  `mapstructure:"metadata" toml:"metadata"`
	Aggregate AggregateConfig `mapstructure:"aggregate" toml:"aggregate"`
}

// CorpusConfig locates the projects and their reports on disk
type CorpusConfig struct {
	ProjectsDir       string   `mapstructure:"projects_dir" toml:"projects_dir"`               // one subdirectory per project
	ReportsDir        string   `mapstructure:"reports_dir" toml:"reports_dir"`                 // current report layout lives under <reports_dir>/v2
	LegacyReportsDirs []string `mapstructure:"legacy_reports_dirs" toml:"legacy_reports_dirs"` // flat <project>-<phase>.txt directories, read only
}

// PipelineConfig configures phase execution and the batch driver
type PipelineConfig struct {
	MaxBackwardsSteps int `mapstructure:"max_backwards_steps" toml:"max_backwards_steps"` // tags tried after the primary revision (default: 5)
	Workers           int `mapstructure:"workers" toml:"workers"`                         // concurrent projects in a batch (default: 1)
	MinFreeMemoryMB   int `mapstructure:"min_free_memory_mb" toml:"min_free_memory_mb"`   // per worker; below this a warning is logged (0 = no check)

	// PartialMode controls whether a non-zero exit may be recorded as PARTIAL:
	// "off", "artifacts" (evidence files must exist) or "config".
	PartialMode                string              `mapstructure:"partial_mode" toml:"partial_mode"`
	PartialPhases              []string            `mapstructure:"partial_phases" toml:"partial_phases"` // phases that may end PARTIAL
	PartialEvidence            map[string][]string `mapstructure:"partial_evidence" toml:"partial_evidence"`
	PartialCountsAsDone        bool                `mapstructure:"partial_counts_as_done" toml:"partial_counts_as_done"`
	PartialSatisfiesDependency bool                `mapstructure:"partial_satisfies_dependency" toml:"partial_satisfies_dependency"`

	// FailurePolicy decides what happens to a phase whose report is ERROR:
	// "auto-fail", "auto-retry" or "interactive".
	FailurePolicy string `mapstructure:"failure_policy" toml:"failure_policy"`

	Timeouts PhaseTimeouts `mapstructure:"timeouts" toml:"timeouts"`
}

// PhaseTimeouts bounds each external command by phase
type PhaseTimeouts struct {
	Import    time.Duration `mapstructure:"import" toml:"import"`
	Compile   time.Duration `mapstructure:"compile" toml:"compile"`
	Extract   time.Duration `mapstructure:"extract" toml:"extract"`
	Normalize time.Duration `mapstructure:"normalize" toml:"normalize"`
	Publish   time.Duration `mapstructure:"publish" toml:"publish"`
}

// CommandsConfig holds the external command lines. Arguments may use the
// {project}, {name}, {dir} and {revision} placeholders.
type CommandsConfig struct {
	Compile string `mapstructure:"compile" toml:"compile"`
	Extract string `mapstructure:"extract" toml:"extract"`
}

// ToolCacheConfig configures the shared download cache
type ToolCacheConfig struct {
	Dir string `mapstructure:"dir" toml:"dir"`
}

// ToolConfig is a tool the build needs inside every project
type ToolConfig struct {
	Name        string `mapstructure:"name" toml:"name"`
	URL         string `mapstructure:"url" toml:"url"`
	InstallPath string `mapstructure:"install_path" toml:"install_path"` // relative to the project directory
}

// DatabaseConfig configures the SQLite corpus database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PublishConfig configures the publish phase
type PublishConfig struct {
	Commit bool `mapstructure:"commit" toml:"commit"` // false rolls the transaction back (UNCOMMITTED)
}

// MetadataConfig configures project metadata capture
type MetadataConfig struct {
	SubjectExtension string `mapstructure:"subject_extension" toml:"subject_extension"` // counted separately from total LOC
	GitHubStars      bool   `mapstructure:"github_stars" toml:"github_stars"`
	GitHubToken      string `mapstructure:"github_token" toml:"github_token"`
	GitHubAPIURL     string `mapstructure:"github_api_url" toml:"github_api_url"`
	RequestsPerHour  int    `mapstructure:"requests_per_hour" toml:"requests_per_hour"`
}

// AggregateConfig configures the corpus report outputs
type AggregateConfig struct {
	OutputDir    string   `mapstructure:"output_dir" toml:"output_dir"`
	Phases       []string `mapstructure:"phases" toml:"phases"`
	MetadataFile string   `mapstructure:"metadata_file" toml:"metadata_file"`
	ResultsFile  string   `mapstructure:"results_file" toml:"results_file"`
	PathsFile    string   `mapstructure:"paths_file" toml:"paths_file"`
}

// Partial modes
const (
	PartialModeOff       = "off"
	PartialModeArtifacts = "artifacts"
	PartialModeConfig    = "config"
)

// Failure policies
const (
	FailurePolicyAutoFail    = "auto-fail"
	FailurePolicyAutoRetry   = "auto-retry"
	FailurePolicyInteractive = "interactive"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// TimeoutFor returns the configured timeout for a phase name, or 0 when unknown
func (t PhaseTimeouts) TimeoutFor(phase string) time.Duration {
	switch phase {
	case "import":
		return t.Import
	case "compile":
		return t.Compile
	case "extract":
		return t.Extract
	case "normalize":
		return t.Normalize
	case "publish":
		return t.Publish
	}
	return 0
}
