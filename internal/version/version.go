// Package version reports build information for the escalation tool and
// decides whether a model artifact's producer version is compatible.
package version

import (
	"cmp"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

const (
	unknownValue     = "unknown"
	commitHashLength = 7
	devVersion       = "dev"
)

// Build-time variables set by ldflags
var (
	Version   = devVersion
	BuildDate = unknownValue
	GitCommit = unknownValue
	GoVersion = runtime.Version()
)

// BuildInfo contains detailed build information
type BuildInfo struct {
	Version   string    `json:"version"`
	BuildDate string    `json:"build_date"`
	GitCommit string    `json:"git_commit"`
	GoVersion string    `json:"go_version"`
	BuildTime time.Time `json:"build_time"`
	Dirty     bool      `json:"dirty"`
	Main      Module    `json:"main"`
	Deps      []Module  `json:"deps"`
}

// Module represents a Go module with version information
type Module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Info returns detailed build information
func Info() BuildInfo {
	buildTime, _ := time.Parse(time.RFC3339, BuildDate)

	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		BuildTime: buildTime,
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.Main = Module{Path: buildInfo.Main.Path, Version: buildInfo.Main.Version}
		for _, dep := range buildInfo.Deps {
			info.Deps = append(info.Deps, Module{Path: dep.Path, Version: dep.Version})
		}
		for _, s := range buildInfo.Settings {
			if s.Key == "vcs.modified" && s.Value == "true" {
				info.Dirty = true
			}
		}
	}

	return info
}

// String returns a formatted version string
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString("escalation-cli\n")
	fmt.Fprintf(&sb, "Version: %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")

	if b.BuildDate != unknownValue && b.BuildDate != "" {
		fmt.Fprintf(&sb, "Build Date: %s\n", b.BuildDate)
	}
	if b.GitCommit != unknownValue && b.GitCommit != "" {
		commit := strings.TrimSuffix(b.GitCommit, "-dirty")
		if len(commit) > commitHashLength {
			commit = commit[:commitHashLength]
		}
		fmt.Fprintf(&sb, "Git Commit: %s\n", commit)
	}
	fmt.Fprintf(&sb, "Go Version: %s\n", b.GoVersion)
	if b.Main.Path != "" {
		fmt.Fprintf(&sb, "Module: %s\n", b.Main.Path)
	}

	return sb.String()
}

// SemVer represents semantic version components
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease string
	Build      string
}

// ParseSemVer parses [v]MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD].
func ParseSemVer(version string) (*SemVer, error) {
	if version == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}
	rest := strings.TrimPrefix(version, "v")

	var s SemVer
	rest, s.Build, _ = strings.Cut(rest, "+")
	rest, s.PreRelease, _ = strings.Cut(rest, "-")

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid version format: %s", version)
	}
	names := [3]string{"major", "minor", "patch"}
	dst := [3]*int{&s.Major, &s.Minor, &s.Patch}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s version: %s", names[i], part)
		}
		*dst[i] = n
	}
	return &s, nil
}

// String returns the semantic version as a string
func (s *SemVer) String() string {
	version := fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
	if s.PreRelease != "" {
		version += "-" + s.PreRelease
	}
	if s.Build != "" {
		version += "+" + s.Build
	}
	return version
}

// Compare returns -1, 0 or 1. A release sorts after its pre-releases;
// build metadata is ignored.
func (s *SemVer) Compare(other *SemVer) int {
	if c := cmp.Compare(s.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Patch, other.Patch); c != 0 {
		return c
	}
	switch {
	case s.PreRelease == other.PreRelease:
		return 0
	case s.PreRelease == "":
		return 1
	case other.PreRelease == "":
		return -1
	}
	return strings.Compare(s.PreRelease, other.PreRelease)
}

// Compatible reports whether an artifact written by producer can be read by
// this build. Development builds on either side are always compatible;
// otherwise the major versions must match.
func Compatible(producer string) (bool, error) {
	if producer == devVersion || Version == devVersion || producer == "" {
		return true, nil
	}
	theirs, err := ParseSemVer(producer)
	if err != nil {
		return false, fmt.Errorf("artifact version: %w", err)
	}
	ours, err := ParseSemVer(Version)
	if err != nil {
		return true, nil //nolint:nilerr // an unparsable local build tag cannot veto loading
	}
	return theirs.Major == ours.Major, nil
}
