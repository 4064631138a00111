package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		name        string
		info        BuildInfo
		contains    []string
		notContains []string
	}{
		{
			name:     "long commit is shortened",
			info:     BuildInfo{Version: "1.2.0", Commit: "abcdef123456789", Date: "2026-01-02", GoVersion: "go1.24", Platform: "linux/amd64"},
			contains: []string{"reqsync 1.2.0", "(abcdef1)", "built 2026-01-02", "with go1.24", "for linux/amd64"},
		},
		{
			name:        "unknown values are omitted",
			info:        BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown", GoVersion: "go1.24", Platform: "linux/arm64"},
			contains:    []string{"reqsync dev", "for linux/arm64"},
			notContains: []string{"unknown", "built"},
		},
		{
			name:     "short commit is kept",
			info:     BuildInfo{Version: "1.0.0", Commit: "abc123", GoVersion: "go1.24", Platform: "darwin/arm64"},
			contains: []string{"(abc123)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.info.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestGet(t *testing.T) {
	originalVersion := Version
	t.Cleanup(func() { Version = originalVersion })

	Version = "3.1.4"
	info := Get()

	assert.Equal(t, "3.1.4", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
