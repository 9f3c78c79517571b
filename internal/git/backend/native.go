package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

type native struct {
	// mu serializes repository access; go-git objects are not safe for concurrent use.
	mu   sync.Mutex
	path string
	repo *gitlib.Repository
}

// OpenNative opens the repository containing repoPath with the pure Go backend.
func OpenNative(repoPath string) (Backend, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, newError(KindNotARepository, "open repository", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, newError(KindNotARepository, "open repository", err)
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, classifyNative("open repository", err, KindCommandFailed)
	}
	n := &native{path: abs, repo: repo}
	if wt, err := repo.Worktree(); err == nil {
		n.path = wt.Filesystem.Root()
	}
	return n, nil
}

// NewNative wraps an already opened repository, e.g. one backed by in-memory
// storage.
func NewNative(repo *gitlib.Repository) Backend {
	n := &native{repo: repo}
	if wt, err := repo.Worktree(); err == nil {
		n.path = wt.Filesystem.Root()
	}
	return n
}

func (n *native) RepoPath() string {
	if n == nil {
		return ""
	}
	return n.path
}

func (n *native) worktree(op string) (*gitlib.Worktree, error) {
	wt, err := n.repo.Worktree()
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	return wt, nil
}

// headCommit returns nil without error on an unborn branch.
func (n *native) headCommit() (*object.Commit, error) {
	head, err := n.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	c, err := n.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	return c, nil
}

func (n *native) headTree() (*object.Tree, error) {
	c, err := n.headCommit()
	if err != nil || c == nil {
		return nil, err
	}
	return c.Tree()
}

// currentBranch returns the short branch name HEAD points to, even when the
// branch has no commits yet.
func (n *native) currentBranch() (string, bool) {
	ref, err := n.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", false
	}
	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", false
	}
	return ref.Target().Short(), true
}

// remoteFor returns the remote configured for branch, falling back to origin.
func (n *native) remoteFor(branch string) (remote string, merge plumbing.ReferenceName) {
	remote = DefaultRemote
	merge = plumbing.NewBranchReferenceName(branch)
	cfg, err := n.repo.Config()
	if err != nil {
		return remote, merge
	}
	if b, ok := cfg.Branches[branch]; ok && b != nil {
		if b.Remote != "" {
			remote = b.Remote
		}
		if b.Merge != "" {
			merge = b.Merge
		}
	}
	return remote, merge
}

func classifyNative(op string, err error, fallback ErrorKind) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, gitlib.ErrRepositoryNotExists),
		errors.Is(err, gitlib.ErrIsBareRepository),
		errors.Is(err, os.ErrNotExist) && op == "open repository",
		errors.Is(err, os.ErrPermission) && op == "open repository":
		return newError(KindNotARepository, op, err)
	case errors.Is(err, gitlib.ErrEmptyCommit):
		return &Error{Kind: KindDirtyWorktreeConflict, Op: op, Message: "nothing staged to commit", Err: err}
	case errors.Is(err, gitlib.ErrUnstagedChanges),
		errors.Is(err, gitlib.ErrNonFastForwardUpdate):
		return newError(KindDirtyWorktreeConflict, op, err)
	case errors.Is(err, gitlib.ErrRemoteNotFound):
		return newError(KindNetworkFailure, op, fmt.Errorf("%w: %w", ErrNoRemote, err))
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.As(err, &netErr):
		return newError(KindNetworkFailure, op, err)
	case strings.Contains(err.Error(), ".lock"):
		return newError(KindTransient, op, err)
	}
	return newError(fallback, op, err)
}

func canceled(op string, ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return newError(KindCommandFailed, op, err)
	}
	return nil
}
