package mods

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// set by -ldflags "-X github.com/airperm/aptfit/mods.versionString=..."
var (
	versionString  = ""
	versionGitSHA  = ""
	buildTimestamp = ""
)

type Version struct {
	Major      int    `json:"major" yaml:"major"`
	Minor      int    `json:"minor" yaml:"minor"`
	Patch      int    `json:"patch" yaml:"patch"`
	Prerelease string `json:"prerelease,omitempty" yaml:"prerelease,omitempty"`
	GitSHA     string `json:"git" yaml:"git"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	GoVersion  string `json:"go" yaml:"go"`
}

// GetVersion parses the build version; a development build reports 0.0.0.
func GetVersion() *Version {
	ret := &Version{
		GitSHA:    versionGitSHA,
		BuildTime: buildTimestamp,
		GoVersion: runtime.Version(),
	}
	if v, err := semver.NewVersion(versionString); err == nil {
		ret.Major = int(v.Major())
		ret.Minor = int(v.Minor())
		ret.Patch = int(v.Patch())
		ret.Prerelease = v.Prerelease()
	}
	return ret
}

func DisplayVersion() string {
	if versionString == "" {
		return "DEVEL"
	}
	return strings.ToUpper(versionString)
}

func VersionString() string {
	return fmt.Sprintf("%s (%v %v)", DisplayVersion(), versionGitSHA, buildTimestamp)
}

// CheckVersion reports whether the build version satisfies constraint,
// e.g. ">= 1.2, < 2". A development build satisfies nothing.
func CheckVersion(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	v, err := semver.NewVersion(versionString)
	if err != nil {
		return false, nil
	}
	return c.Check(v), nil
}
