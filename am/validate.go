package am

import "github.com/implicit-corpus/collector/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Corpus.ProjectsDir == "" {
		return errors.New("corpus.projects_dir cannot be empty")
	}
	if c.Corpus.ReportsDir == "" {
		return errors.New("corpus.reports_dir cannot be empty")
	}

	// Zero backwards steps means only the primary revision is tried
	if c.Pipeline.MaxBackwardsSteps < 0 {
		return errors.Newf("pipeline.max_backwards_steps must be >= 0, got %d", c.Pipeline.MaxBackwardsSteps)
	}
	if c.Pipeline.Workers < 0 {
		return errors.Newf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MinFreeMemoryMB < 0 {
		return errors.Newf("pipeline.min_free_memory_mb must be >= 0, got %d", c.Pipeline.MinFreeMemoryMB)
	}

	switch c.Pipeline.PartialMode {
	case "", PartialModeOff, PartialModeConfig:
	case PartialModeArtifacts:
		for _, phase := range c.Pipeline.PartialPhases {
			if len(c.Pipeline.PartialEvidence[phase]) == 0 {
				return errors.WithHintf(
					errors.Newf("pipeline.partial_evidence has no globs for phase %q", phase),
					"partial_mode = %q needs evidence files for every phase in partial_phases", PartialModeArtifacts)
			}
		}
	default:
		return errors.Newf("pipeline.partial_mode must be one of off, artifacts, config; got %q", c.Pipeline.PartialMode)
	}

	switch c.Pipeline.FailurePolicy {
	case "", FailurePolicyAutoFail, FailurePolicyAutoRetry, FailurePolicyInteractive:
	default:
		return errors.Newf("pipeline.failure_policy must be one of auto-fail, auto-retry, interactive; got %q", c.Pipeline.FailurePolicy)
	}

	t := c.Pipeline.Timeouts
	for name, d := range map[string]int64{
		"import": int64(t.Import), "compile": int64(t.Compile), "extract": int64(t.Extract),
		"normalize": int64(t.Normalize), "publish": int64(t.Publish),
	} {
		if d < 0 {
			return errors.Newf("pipeline.timeouts.%s must not be negative", name)
		}
	}

	for i, tool := range c.Tools {
		if tool.Name == "" {
			return errors.Newf("tools[%d].name cannot be empty", i)
		}
		if tool.URL == "" {
			return errors.Newf("tools[%d] (%s): url cannot be empty", i, tool.Name)
		}
	}

	if c.Metadata.RequestsPerHour < 0 {
		return errors.Newf("metadata.requests_per_hour must be >= 0, got %d", c.Metadata.RequestsPerHour)
	}

	return nil
}
