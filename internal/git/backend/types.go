package backend

import (
	"strings"
	"time"
)

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type Commit struct {
	Hash      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
	Refs      []Ref

	// Boundary is set when at least one parent lies outside the fetched window.
	Boundary bool
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(subject)
}

// ShortHash returns the abbreviated hash used in lists.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// MarkBoundaries flags commits whose parents are not part of the list.
func MarkBoundaries(commits []Commit) {
	seen := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		seen[c.Hash] = struct{}{}
	}
	for i := range commits {
		commits[i].Boundary = false
		for _, p := range commits[i].Parents {
			if _, ok := seen[p]; !ok {
				commits[i].Boundary = true
				break
			}
		}
	}
}

type RefKind uint8

const (
	RefKindBranch RefKind = iota
	RefKindRemoteBranch
	RefKindTag
	RefKindHead
)

type Ref struct {
	Hash string
	Kind RefKind
	Name string // short name: main, origin/main, v1
}

type TagRef struct {
	Name      string
	Target    string // peeled commit hash
	Annotated bool
}

// Tracking describes the checked out branch and its upstream, if any.
type Tracking struct {
	Branch   string
	Detached bool
	// Upstream is nil when the branch has no upstream configured.
	Upstream *Upstream
}

type Upstream struct {
	Name   string // e.g. origin/main
	Ahead  int
	Behind int
}

func (t Tracking) HasUpstream() bool {
	return t.Upstream != nil
}

// Change is the state of one side (index or work tree) of a path.
type Change uint8

const (
	ChangeNone Change = iota
	ChangeAdded
	ChangeModified
	ChangeDeleted
	ChangeRenamed
	ChangeUntracked
	ChangeUnmerged
)

func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	case ChangeUntracked:
		return "untracked"
	case ChangeUnmerged:
		return "unmerged"
	default:
		return "unmodified"
	}
}

type DiffStats struct {
	Added   int
	Removed int
	// Known is false for binary files or when stats could not be computed.
	Known bool
}

// FileEntry is the state of one path. Index holds the index-vs-HEAD change and
// Worktree the worktree-vs-index change; both sides carry their own stats.
type FileEntry struct {
	Path     string
	OrigPath string // source path of a rename

	Index    Change
	Worktree Change

	IndexStats    DiffStats
	WorktreeStats DiffStats
}

type FileStatus uint8

const (
	StatusModified FileStatus = iota
	StatusUntracked
	StatusStaged
	StatusStagedModified
	StatusDeleted
	StatusRenamed
	StatusConflicted
)

func (s FileStatus) String() string {
	switch s {
	case StatusUntracked:
		return "untracked"
	case StatusStaged:
		return "staged"
	case StatusStagedModified:
		return "staged+modified"
	case StatusDeleted:
		return "deleted"
	case StatusRenamed:
		return "renamed"
	case StatusConflicted:
		return "conflicted"
	default:
		return "modified"
	}
}

func (f FileEntry) Status() FileStatus {
	switch {
	case f.Index == ChangeUnmerged || f.Worktree == ChangeUnmerged:
		return StatusConflicted
	case f.Worktree == ChangeUntracked:
		return StatusUntracked
	case f.Index == ChangeRenamed && f.Worktree == ChangeNone:
		return StatusRenamed
	case f.Index == ChangeDeleted && f.Worktree == ChangeNone,
		f.Index == ChangeNone && f.Worktree == ChangeDeleted:
		return StatusDeleted
	case f.Index != ChangeNone && f.Worktree != ChangeNone:
		return StatusStagedModified
	case f.Index != ChangeNone:
		return StatusStaged
	default:
		return StatusModified
	}
}

// HasStaged reports whether the index differs from HEAD for this path.
func (f FileEntry) HasStaged() bool {
	switch f.Index {
	case ChangeNone, ChangeUntracked, ChangeUnmerged:
		return false
	}
	return true
}

// HasUnstaged reports whether the work tree differs from the index. Conflicted
// paths count as unstaged since staging them marks the conflict resolved.
func (f FileEntry) HasUnstaged() bool {
	return f.Worktree != ChangeNone || f.Index == ChangeUnmerged
}
