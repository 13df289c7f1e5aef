// Package buildinfo exposes version information stamped at build time.
package buildinfo

var (
	// GitCommit is set by the linker at build time.
	GitCommit = "n/a"
	// BuildDate is set by the linker at build time.
	BuildDate = "n/a"
	// Version is set by the linker at build time.
	Version = "n/a"
)

// Summary is the version information of the running binary.
type Summary struct {
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	Version   string `json:"version"`
}

// GetSummary returns the version information of the running binary.
func GetSummary() Summary {
	return Summary{
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		Version:   Version,
	}
}
