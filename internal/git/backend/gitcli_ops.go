package backend

import (
	"context"
	"fmt"
	"strings"
)

func (g *gitCLI) Stage(ctx context.Context, path string) error {
	// -A records deletions as well as additions.
	_, err := g.run(ctx, "stage", runOpts{}, "add", "-A", "--", path)
	return err
}

func (g *gitCLI) Unstage(ctx context.Context, path string) error {
	const op = "unstage"
	_, _, hasHead, err := g.headState(ctx)
	if err != nil {
		return err
	}
	if !hasHead {
		_, err = g.run(ctx, op, runOpts{}, "rm", "--cached", "-q", "-r", "--", path)
		return err
	}
	_, err = g.run(ctx, op, runOpts{}, "restore", "--staged", "--", path)
	return err
}

func (g *gitCLI) Commit(ctx context.Context, message string) (Commit, error) {
	return g.commit(ctx, "commit", "commit", "-m", message)
}

func (g *gitCLI) Amend(ctx context.Context, message string) (Commit, error) {
	return g.commit(ctx, "amend", "commit", "--amend", "-m", message)
}

func (g *gitCLI) commit(ctx context.Context, op string, args ...string) (Commit, error) {
	if _, err := g.run(ctx, op, runOpts{}, args...); err != nil {
		return Commit{}, err
	}
	out, err := g.run(ctx, op, runOpts{}, "log", "-1", "--no-color", "--pretty=tformat:"+logFormat, "HEAD")
	if err != nil {
		return Commit{}, err
	}
	commits, err := parseGitLog(out)
	if err != nil || len(commits) != 1 {
		return Commit{}, errorf(KindCommandFailed, op, "read new commit: %v", err)
	}
	return commits[0], nil
}

// remoteFor returns the remote configured for branch, falling back to origin.
// configured reports whether branch.<name>.remote is set.
func (g *gitCLI) remoteFor(ctx context.Context, branch string) (remote string, configured bool) {
	out, err := g.run(ctx, "read config", runOpts{allowExit1: true},
		"config", "--get", "branch."+branch+".remote")
	if err == nil {
		if r := strings.TrimSpace(out); r != "" {
			return r, true
		}
	}
	return DefaultRemote, false
}

func (g *gitCLI) hasRemote(ctx context.Context, op, name string) error {
	out, err := g.run(ctx, op, runOpts{}, "remote")
	if err != nil {
		return err
	}
	for _, r := range strings.Fields(out) {
		if r == name {
			return nil
		}
	}
	return &Error{Kind: KindNetworkFailure, Op: op, Message: fmt.Sprintf("remote %s not found", name), Err: ErrNoRemote}
}

func (g *gitCLI) Push(ctx context.Context) error {
	const op = "push"
	_, branch, ok, err := g.headState(ctx)
	if err != nil {
		return err
	}
	if !ok || branch == "HEAD" {
		return errorf(KindCommandFailed, op, "no branch to push")
	}
	remote, configured := g.remoteFor(ctx, branch)
	if err := g.hasRemote(ctx, op, remote); err != nil {
		return err
	}
	args := []string{"push", "--porcelain"}
	if !configured {
		args = append(args, "-u", remote, branch)
	}
	_, err = g.run(ctx, op, runOpts{}, args...)
	return err
}

func (g *gitCLI) Pull(ctx context.Context) error {
	const op = "pull"
	_, branch, ok, err := g.headState(ctx)
	if err != nil {
		return err
	}
	if !ok || branch == "HEAD" {
		return errorf(KindCommandFailed, op, "no branch to pull into")
	}
	remote, _ := g.remoteFor(ctx, branch)
	if err := g.hasRemote(ctx, op, remote); err != nil {
		return err
	}
	_, err = g.run(ctx, op, runOpts{}, "pull", "--ff-only", "--no-edit")
	return err
}

func (g *gitCLI) AddRemote(ctx context.Context, name, url string) error {
	if name == "" {
		name = DefaultRemote
	}
	_, err := g.run(ctx, "add remote", runOpts{}, "remote", "add", "--", name, url)
	return err
}

func (g *gitCLI) CreateTag(ctx context.Context, name, target string) error {
	if target == "" {
		target = "HEAD"
	}
	_, err := g.run(ctx, "create tag", runOpts{}, "tag", "--", name, target)
	return err
}

func (g *gitCLI) DeleteTag(ctx context.Context, name string) error {
	_, err := g.run(ctx, "delete tag", runOpts{}, "tag", "-d", "--", name)
	return err
}

func (g *gitCLI) PushTags(ctx context.Context) error {
	const op = "push tags"
	remote := DefaultRemote
	if _, branch, ok, err := g.headState(ctx); err == nil && ok && branch != "HEAD" {
		remote, _ = g.remoteFor(ctx, branch)
	}
	if err := g.hasRemote(ctx, op, remote); err != nil {
		return err
	}
	_, err := g.run(ctx, op, runOpts{}, "push", "--porcelain", remote, "--tags")
	return err
}
