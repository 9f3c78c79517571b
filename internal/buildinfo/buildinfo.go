package buildinfo

import (
	"runtime/debug"
	"strings"
)

func read() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

// Version returns the module version or "dev" when unset.
func Version() string {
	info := read()
	if info == nil {
		return "dev"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return "dev"
	}
	return version
}

func setting(key string) string {
	info := read()
	if info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// Revision returns the abbreviated VCS revision of the build, suffixed with
// "-dirty" for builds from a modified work tree.
func Revision() string {
	rev := setting("vcs.revision")
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && setting("vcs.modified") == "true" {
		rev += "-dirty"
	}
	return rev
}

// Tags returns the build tags recorded at compile time.
func Tags() string {
	return setting("-tags")
}

// VersionWithTags returns the version followed by the revision and build
// tags when they are known.
func VersionWithTags() string {
	return describe(Version(), Revision(), Tags())
}

func describe(version, revision, tags string) string {
	var extra []string
	if revision != "" && !strings.Contains(version, revision) {
		extra = append(extra, revision)
	}
	if tags != "" {
		extra = append(extra, "tags: "+tags)
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, ", ") + ")"
}
