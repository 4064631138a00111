// Package version exposes build metadata for the reqsync binary.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	// Name is the binary name used in version banners and telemetry.
	Name = "reqsync"

	shortCommitLength = 7
	unknownValue      = "unknown"
)

// Set by -ldflags at build time.
var (
	Version = "dev"
	Commit  = unknownValue
	Date    = unknownValue
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the current binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders a one-line banner, omitting fields that were not stamped.
func (bi BuildInfo) String() string {
	parts := []string{Name, bi.Version}
	if bi.Commit != "" && bi.Commit != unknownValue {
		commit := bi.Commit
		if len(commit) > shortCommitLength {
			commit = commit[:shortCommitLength]
		}
		parts = append(parts, "("+commit+")")
	}
	if bi.Date != "" && bi.Date != unknownValue {
		parts = append(parts, "built "+bi.Date)
	}
	parts = append(parts, "with "+bi.GoVersion, "for "+bi.Platform)
	return strings.Join(parts, " ")
}
