package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func (n *native) Stage(ctx context.Context, path string) error {
	const op = "stage"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	wt, err := n.worktree(op)
	if err != nil {
		return err
	}
	if _, err := wt.Filesystem.Lstat(path); err != nil {
		if !os.IsNotExist(err) {
			return classifyNative(op, err, KindCommandFailed)
		}
		// Deleted in the work tree: staging records the removal.
		if _, err := wt.Remove(path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return classifyNative(op, err, KindCommandFailed)
		}
		return nil
	}
	if _, err := wt.Add(path); err != nil {
		return classifyNative(op, err, KindCommandFailed)
	}
	return nil
}

// Unstage resets the index entry of path to its HEAD version, or drops it
// when HEAD does not have the path.
func (n *native) Unstage(ctx context.Context, path string) error {
	const op = "unstage"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	idx, err := n.repo.Storer.Index()
	if err != nil {
		return classifyNative(op, err, KindCommandFailed)
	}
	tree, err := n.headTree()
	if err != nil {
		return classifyNative(op, err, KindCommandFailed)
	}
	var headFile *object.File
	if tree != nil {
		f, err := tree.File(path)
		switch {
		case err == nil:
			headFile = f
		case !errors.Is(err, object.ErrFileNotFound):
			return classifyNative(op, err, KindCommandFailed)
		}
	}

	if headFile == nil {
		if _, err := idx.Remove(path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return classifyNative(op, err, KindCommandFailed)
		}
	} else {
		e, err := idx.Entry(path)
		if err != nil {
			if !errors.Is(err, index.ErrEntryNotFound) {
				return classifyNative(op, err, KindCommandFailed)
			}
			e = idx.Add(path)
		}
		e.Hash = headFile.Hash
		e.Mode = headFile.Mode
		e.Size = uint32(headFile.Size)
		// A zero mtime forces the next status to rehash the work tree file.
		e.ModifiedAt = time.Time{}
		e.CreatedAt = time.Time{}
	}
	if err := n.repo.Storer.SetIndex(idx); err != nil {
		return classifyNative(op, err, KindTransient)
	}
	return nil
}

func (n *native) Commit(ctx context.Context, message string) (Commit, error) {
	return n.commit(ctx, "commit", message, false)
}

func (n *native) Amend(ctx context.Context, message string) (Commit, error) {
	return n.commit(ctx, "amend", message, true)
}

func (n *native) commit(ctx context.Context, op, message string, amend bool) (Commit, error) {
	if err := canceled(op, ctx); err != nil {
		return Commit{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if amend {
		if head, err := n.headCommit(); err != nil {
			return Commit{}, classifyNative(op, err, KindCommandFailed)
		} else if head == nil {
			return Commit{}, errorf(KindCommandFailed, op, "no commit to amend")
		}
	}
	wt, err := n.worktree(op)
	if err != nil {
		return Commit{}, err
	}
	if !amend {
		st, err := wt.Status()
		if err != nil {
			return Commit{}, classifyNative(op, err, KindCommandFailed)
		}
		if !hasStagedChanges(st) {
			return Commit{}, errorf(KindDirtyWorktreeConflict, op, "nothing staged to commit")
		}
	}
	h, err := wt.Commit(message, &gitlib.CommitOptions{Amend: amend})
	if err != nil {
		return Commit{}, classifyNative(op, err, KindCommandFailed)
	}
	c, err := n.repo.CommitObject(h)
	if err != nil {
		return Commit{}, classifyNative(op, err, KindCommandFailed)
	}
	return commitFromObject(c, nil), nil
}

func hasStagedChanges(st gitlib.Status) bool {
	for _, fs := range st {
		switch fs.Staging {
		case gitlib.Unmodified, gitlib.Untracked:
		default:
			return true
		}
	}
	return false
}

func (n *native) Push(ctx context.Context) error {
	const op = "push"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	branch, ok := n.currentBranch()
	if !ok {
		return errorf(KindCommandFailed, op, "HEAD is detached")
	}
	remote, merge := n.remoteFor(branch)
	if _, err := n.repo.Remote(remote); err != nil {
		return classifyNative(op, err, KindNetworkFailure)
	}
	local := plumbing.NewBranchReferenceName(branch)
	spec := config.RefSpec(fmt.Sprintf("%s:%s", local, merge))
	err := n.repo.PushContext(ctx, &gitlib.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
	})
	if err != nil && !errors.Is(err, gitlib.NoErrAlreadyUpToDate) {
		return classifyNative(op, err, KindNetworkFailure)
	}
	return n.ensureUpstream(branch, remote, merge)
}

// ensureUpstream records remote as the branch upstream when none is set.
func (n *native) ensureUpstream(branch, remote string, merge plumbing.ReferenceName) error {
	cfg, err := n.repo.Config()
	if err != nil {
		return classifyNative("set upstream", err, KindCommandFailed)
	}
	if b, ok := cfg.Branches[branch]; ok && b.Remote != "" {
		return nil
	}
	cfg.Branches[branch] = &config.Branch{Name: branch, Remote: remote, Merge: merge}
	if err := n.repo.SetConfig(cfg); err != nil {
		return classifyNative("set upstream", err, KindCommandFailed)
	}
	return nil
}

func (n *native) Pull(ctx context.Context) error {
	const op = "pull"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	branch, ok := n.currentBranch()
	if !ok {
		return errorf(KindCommandFailed, op, "HEAD is detached")
	}
	remote, merge := n.remoteFor(branch)
	if _, err := n.repo.Remote(remote); err != nil {
		return classifyNative(op, err, KindNetworkFailure)
	}
	wt, err := n.worktree(op)
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &gitlib.PullOptions{RemoteName: remote, ReferenceName: merge})
	if err != nil && !errors.Is(err, gitlib.NoErrAlreadyUpToDate) {
		return classifyNative(op, err, KindNetworkFailure)
	}
	return nil
}

func (n *native) AddRemote(ctx context.Context, name, url string) error {
	const op = "add remote"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if name == "" {
		name = DefaultRemote
	}
	_, err := n.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		if errors.Is(err, gitlib.ErrRemoteExists) {
			return errorf(KindCommandFailed, op, "remote %s already exists", name)
		}
		return classifyNative(op, err, KindCommandFailed)
	}
	return nil
}

func (n *native) CreateTag(ctx context.Context, name, target string) error {
	const op = "create tag"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if target == "" {
		target = "HEAD"
	}
	h, err := n.repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return errorf(KindCommandFailed, op, "unknown revision %s", target)
	}
	if _, err := n.repo.CreateTag(name, *h, nil); err != nil {
		if errors.Is(err, gitlib.ErrTagExists) {
			return errorf(KindCommandFailed, op, "tag %s already exists", name)
		}
		return classifyNative(op, err, KindCommandFailed)
	}
	return nil
}

func (n *native) DeleteTag(ctx context.Context, name string) error {
	const op = "delete tag"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.repo.DeleteTag(name); err != nil {
		if errors.Is(err, gitlib.ErrTagNotFound) {
			return errorf(KindCommandFailed, op, "tag %s not found", name)
		}
		return classifyNative(op, err, KindCommandFailed)
	}
	return nil
}

func (n *native) PushTags(ctx context.Context) error {
	const op = "push tags"
	if err := canceled(op, ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	remote := DefaultRemote
	if branch, ok := n.currentBranch(); ok {
		remote, _ = n.remoteFor(branch)
	}
	if _, err := n.repo.Remote(remote); err != nil {
		return classifyNative(op, err, KindNetworkFailure)
	}
	err := n.repo.PushContext(ctx, &gitlib.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{"refs/tags/*:refs/tags/*"},
	})
	if err != nil && !errors.Is(err, gitlib.NoErrAlreadyUpToDate) {
		return classifyNative(op, err, KindNetworkFailure)
	}
	return nil
}
