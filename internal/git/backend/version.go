package backend

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// requiredGit is the oldest git whose porcelain v2 status and
// "restore --staged" the CLI backend relies on.
var requiredGit = gitRelease{2, 23, 0}

type gitRelease [3]int

func (r gitRelease) String() string {
	return fmt.Sprintf("%d.%d.%d", r[0], r[1], r[2])
}

func (r gitRelease) before(o gitRelease) bool {
	for i := range r {
		if r[i] != o[i] {
			return r[i] < o[i]
		}
	}
	return false
}

// Matches "git version 2.39.3 (Apple Git-146)", "2.39.3.windows.1", "2.42".
var releasePattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

func parseRelease(out string) (gitRelease, bool) {
	m := releasePattern.FindStringSubmatch(out)
	if m == nil {
		return gitRelease{}, false
	}
	var r gitRelease
	for i, s := range m[1:] {
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return gitRelease{}, false
		}
		r[i] = n
	}
	return r, true
}

func checkRelease(out string) error {
	got, ok := parseRelease(out)
	if !ok {
		return fmt.Errorf("unrecognised git version %q", strings.TrimSpace(out))
	}
	if got.before(requiredGit) {
		return fmt.Errorf("git %s is too old; siori needs git %s or newer", got, requiredGit)
	}
	return nil
}

var probeGit = func() (string, error) {
	out, err := exec.Command("git", "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git --version: %w", err)
	}
	return string(out), nil
}

var gitSupported = sync.OnceValue(func() error {
	out, err := probeGit()
	if err != nil {
		return err
	}
	return checkRelease(out)
})

func ensureMinGitVersion() error {
	return gitSupported()
}
