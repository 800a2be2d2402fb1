package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	info := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	applyBuildInfo(&info, bi)
	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "collector v0.3.1 (commit 0123456, built 2026-01-02T03:04:05Z, modified)", info.String())

	stamped := Info{CommitHash: "feedface00", BuildTime: "yesterday", Version: "v1.0.0"}
	applyBuildInfo(&stamped, bi)
	assert.Equal(t, "v1.0.0", stamped.Version)
	assert.Equal(t, "feedface00", stamped.CommitHash)
	assert.Equal(t, "yesterday", stamped.BuildTime)
}

func TestApplyBuildInfo_Devel(t *testing.T) {
	info := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	applyBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "collector dev (commit dev, built unknown)", info.String())
}
