package backend

import (
	"context"
	"fmt"
	"strings"
)

// Backend abstracts access to repository data.
//
// The default implementation is pure Go (go-git), while the git CLI
// implementation shells out to the git executable. Callers only see typed
// *Error failures.
type Backend interface {
	RepoPath() string

	// Status lists changed paths in no particular order.
	Status(ctx context.Context) ([]FileEntry, error)
	Log(ctx context.Context, window int) ([]Commit, error)
	Tags(ctx context.Context) ([]TagRef, error)
	Tracking(ctx context.Context) (Tracking, error)

	Stage(ctx context.Context, path string) error
	Unstage(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) (Commit, error)
	Amend(ctx context.Context, message string) (Commit, error)

	Push(ctx context.Context) error
	Pull(ctx context.Context) error
	AddRemote(ctx context.Context, name, url string) error

	CreateTag(ctx context.Context, name, target string) error
	DeleteTag(ctx context.Context, name string) error
	PushTags(ctx context.Context) error

	CommitDiff(ctx context.Context, hash string) (string, error)
	FileDiff(ctx context.Context, path string, staged bool) (string, error)
}

type Kind string

const (
	KindNative Kind = "native"
	KindGitCLI Kind = "gitcli"
)

// ParseKind maps a user supplied backend name to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindNative:
		return KindNative, nil
	case KindGitCLI, "git", "cli":
		return KindGitCLI, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %s or %s)", raw, KindNative, KindGitCLI)
	}
}

// Open opens the repository containing path with the requested backend.
func Open(kind Kind, path string) (Backend, error) {
	switch kind {
	case KindGitCLI:
		return OpenCLI(path)
	default:
		return OpenNative(path)
	}
}

// DefaultRemote is used when the current branch has no remote configured.
const DefaultRemote = "origin"
