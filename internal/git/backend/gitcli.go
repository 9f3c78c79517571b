package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type gitCLI struct {
	path string
}

// OpenCLI opens the repository containing repoPath with the git executable
// backend.
func OpenCLI(repoPath string) (Backend, error) {
	const op = "open repository"
	if err := ensureMinGitVersion(); err != nil {
		return nil, newError(KindCommandFailed, op, err)
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, newError(KindNotARepository, op, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, newError(KindNotARepository, op, err)
	}
	tmp := &gitCLI{path: abs}
	root, err := tmp.run(context.Background(), op, runOpts{}, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errorf(KindNotARepository, op, "%s has no work tree", abs)
	}
	return &gitCLI{path: root}, nil
}

func (g *gitCLI) RepoPath() string {
	if g == nil {
		return ""
	}
	return g.path
}

type runOpts struct {
	// allowExit1 treats exit status 1 with empty stderr as success, as used by
	// commands such as git diff --no-index and show-ref to signal a result.
	allowExit1 bool
	// noLocks keeps read-only commands from refreshing the index, which would
	// otherwise take index.lock and wake up file watchers.
	noLocks bool
}

func (g *gitCLI) run(ctx context.Context, op string, opts runOpts, args ...string) (string, error) {
	if g == nil || g.path == "" {
		return "", errorf(KindNotARepository, op, "repository root not set")
	}
	cmdArgs := append([]string{"--no-pager", "-C", g.path}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	if opts.noLocks {
		cmd.Env = append(cmd.Env, "GIT_OPTIONAL_LOCKS=0")
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	var exitErr *exec.ExitError
	if opts.allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
		return stdout.String(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", newError(KindCommandFailed, op, ctxErr)
	}
	return "", classifyCLI(op, err, stdout.String(), stderr.String())
}

// cliPatterns maps lower-cased git output fragments to error kinds. The first
// match wins.
var cliPatterns = []struct {
	fragment string
	kind     ErrorKind
}{
	{"not a git repository (or any", KindNotARepository},
	{"cannot change to", KindNotARepository},
	{"index.lock", KindTransient},
	{"unable to create", KindTransient},
	{"another git process seems to be running", KindTransient},
	{"nothing to commit", KindDirtyWorktreeConflict},
	{"no changes added to commit", KindDirtyWorktreeConflict},
	{"would be overwritten", KindDirtyWorktreeConflict},
	{"your local changes", KindDirtyWorktreeConflict},
	{"not possible to fast-forward", KindDirtyWorktreeConflict},
	{"unmerged files", KindDirtyWorktreeConflict},
	{"no configured push destination", KindNetworkFailure},
	{"does not appear to be a git repository", KindNetworkFailure},
	{"could not read from remote", KindNetworkFailure},
	{"could not resolve host", KindNetworkFailure},
	{"unable to access", KindNetworkFailure},
	{"authentication failed", KindNetworkFailure},
	{"permission denied", KindNetworkFailure},
	{"connection", KindNetworkFailure},
	{"[rejected]", KindNetworkFailure},
	{"failed to push", KindNetworkFailure},
}

func classifyCLI(op string, err error, stdout, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return newError(KindCommandFailed, op, err)
	}
	kind := KindCommandFailed
	lower := strings.ToLower(msg)
	for _, p := range cliPatterns {
		if strings.Contains(lower, p.fragment) {
			kind = p.kind
			break
		}
	}
	cause := err
	if strings.Contains(lower, "no configured push destination") {
		cause = fmt.Errorf("%w: %w", ErrNoRemote, err)
	}
	return &Error{Kind: kind, Op: op, Message: firstLines(msg, 3), Err: cause}
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
