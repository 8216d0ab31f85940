// Package version reports what build of the topology tool is running.
//
//	go build -ldflags "-X github.com/InfraSecConsult/pcap-topology-go/internal/version.Version=v1.0.0" ./cmd/topology
//
// Without ldflags the version comes from a VERSION file near the working directory,
// then "dev". The commit falls back to the VCS stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time via ldflags.
var (
	Version    = ""
	CommitHash = ""
	BuildTime  = ""
)

// Info is the build description printed by the version command.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func (i Info) String() string {
	s := "topology " + i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return fmt.Sprintf("%s %s", s, i.GoVersion)
}

func GetVersion() string {
	if Version != "" {
		return Version
	}
	for _, path := range []string{"VERSION", "../VERSION", "../../VERSION"} {
		if content, err := os.ReadFile(path); err == nil {
			if v := strings.TrimSpace(string(content)); v != "" {
				return v
			}
		}
	}
	return "dev"
}

// Commit returns CommitHash, or the short vcs.revision from the embedded build info.
func Commit() string {
	if CommitHash != "" {
		return CommitHash
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return ""
}

// GetFullVersion returns the version with the commit appended, if known.
func GetFullVersion() string {
	v := GetVersion()
	if c := Commit(); c != "" {
		v += "+" + c
	}
	return v
}

func GetBuildInfo() Info {
	return Info{
		Version:   GetVersion(),
		Commit:    Commit(),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
