package engine

import (
	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
)

// pending is an accepted intent that no refresh has confirmed yet.
type pending struct {
	id     uint64
	intent Intent
	// expect is the displayed entry of the target path at submit time.
	expect backend.FileEntry

	done   bool
	doneAt uint64
	commit *backend.Commit
}

type outcome uint8

const (
	outcomeKeep outcome = iota
	outcomeReflected
	outcomeStale
)

// outcome compares a pending intent with freshly fetched state.
func (p *pending) outcome(f fetched) outcome {
	switch p.intent.Kind {
	case IntentStage, IntentUnstage:
		cur, ok := findEntry(f.files, p.intent.Path)
		if !ok || renamedSince(p.expect, cur) {
			return outcomeStale
		}
		if p.intent.Kind == IntentStage {
			if !cur.HasUnstaged() {
				return outcomeReflected
			}
			if cur.Worktree != p.expect.Worktree {
				return outcomeStale
			}
			return outcomeKeep
		}
		if !cur.HasStaged() {
			return outcomeReflected
		}
		if cur.Index != p.expect.Index {
			return outcomeStale
		}
	case IntentCreateTag:
		if hasTag(f.tags, p.intent.Name) {
			return outcomeReflected
		}
	case IntentDeleteTag:
		if !hasTag(f.tags, p.intent.Name) {
			return outcomeReflected
		}
	}
	return outcomeKeep
}

func renamedSince(before, now backend.FileEntry) bool {
	return now.OrigPath != before.OrigPath ||
		(now.Index == backend.ChangeRenamed) != (before.Index == backend.ChangeRenamed)
}

func findEntry(files []backend.FileEntry, path string) (backend.FileEntry, bool) {
	for _, f := range files {
		if f.Path == path {
			return f, true
		}
	}
	return backend.FileEntry{}, false
}

func hasTag(tags []backend.TagRef, name string) bool {
	for _, t := range tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// project lays the pending intents over b, in submission order.
func project(repo string, gen uint64, b *base, queue []*pending) *Snapshot {
	s := &Snapshot{Repo: repo, Generation: gen}
	for _, p := range queue {
		s.InFlight = append(s.InFlight, p.intent)
	}
	if b == nil {
		return s
	}
	s.Tracking = b.tracking
	s.Graph, s.GraphErr = b.graph, b.graphErr
	s.RefreshedAt = b.at
	s.Files = make([]FileView, 0, len(b.files))
	for _, f := range b.files {
		s.Files = append(s.Files, FileView{FileEntry: f})
	}
	s.Commits = append([]backend.Commit(nil), b.commits...)
	s.Tags = append([]backend.TagRef(nil), b.tags...)

	history := false
	for _, p := range queue {
		in := p.intent
		switch in.Kind {
		case IntentStage:
			s.Files = updateEntry(s.Files, in.Path, stagedEntry)
		case IntentUnstage:
			s.Files = updateEntry(s.Files, in.Path, unstagedEntry)
		case IntentCommit, IntentAmend:
			s.Files = committedFiles(s.Files)
			if p.commit != nil && addCommit(s, *p.commit, in.Kind == IntentAmend) {
				history = true
			}
		case IntentCreateTag:
			if !hasTag(s.Tags, in.Name) {
				target := in.Target
				if head, ok := s.Head(); ok && target == "" {
					target = head.Hash
				}
				s.Tags = append(s.Tags, backend.TagRef{Name: in.Name, Target: target})
				sortTags(s.Tags)
			}
		case IntentDeleteTag:
			tags := s.Tags[:0:0]
			for _, t := range s.Tags {
				if t.Name != in.Name {
					tags = append(tags, t)
				}
			}
			s.Tags = tags
		}
	}
	if history {
		backend.MarkBoundaries(s.Commits)
		s.Graph, s.GraphErr = git.BuildGraph(s.Commits)
	}
	return s
}

func updateEntry(files []FileView, path string, fn func(backend.FileEntry) (backend.FileEntry, bool)) []FileView {
	for i, f := range files {
		if f.Path != path {
			continue
		}
		next, keep := fn(f.FileEntry)
		if !keep {
			return append(files[:i:i], files[i+1:]...)
		}
		files[i] = FileView{FileEntry: next, Pending: true}
		return files
	}
	return files
}

// stagedEntry is the state of f once its work tree change is staged. It
// reports false when the path would no longer differ from HEAD.
func stagedEntry(f backend.FileEntry) (backend.FileEntry, bool) {
	switch {
	case f.Worktree == backend.ChangeUntracked:
		f.Index, f.IndexStats = backend.ChangeAdded, f.WorktreeStats
	case f.Index == backend.ChangeUnmerged:
		f.Index, f.IndexStats = backend.ChangeModified, backend.DiffStats{}
	case f.Worktree == backend.ChangeDeleted:
		if f.Index == backend.ChangeAdded {
			return f, false
		}
		if f.Index == backend.ChangeNone {
			f.IndexStats = f.WorktreeStats
		} else {
			f.IndexStats = backend.DiffStats{}
		}
		f.Index = backend.ChangeDeleted
	case f.Index == backend.ChangeNone:
		f.Index, f.IndexStats = f.Worktree, f.WorktreeStats
	default:
		f.IndexStats = addStats(f.IndexStats, f.WorktreeStats)
	}
	f.Worktree, f.WorktreeStats = backend.ChangeNone, backend.DiffStats{}
	return f, true
}

// unstagedEntry is the state of f once its index entry matches HEAD again.
func unstagedEntry(f backend.FileEntry) (backend.FileEntry, bool) {
	switch f.Index {
	case backend.ChangeAdded, backend.ChangeRenamed:
		if f.Worktree == backend.ChangeDeleted {
			return f, false
		}
		stats := f.IndexStats
		if f.Worktree != backend.ChangeNone {
			stats = backend.DiffStats{}
		}
		f.Worktree, f.WorktreeStats = backend.ChangeUntracked, stats
		f.OrigPath = ""
	default:
		if f.Worktree == backend.ChangeNone {
			f.Worktree, f.WorktreeStats = f.Index, f.IndexStats
		} else if f.Worktree != backend.ChangeDeleted {
			f.WorktreeStats = addStats(f.IndexStats, f.WorktreeStats)
		}
	}
	f.Index, f.IndexStats = backend.ChangeNone, backend.DiffStats{}
	return f, true
}

func committedFiles(files []FileView) []FileView {
	out := files[:0:0]
	for _, f := range files {
		if !f.HasStaged() {
			out = append(out, f)
			continue
		}
		if f.Worktree == backend.ChangeNone {
			continue
		}
		f.Index, f.IndexStats, f.OrigPath = backend.ChangeNone, backend.DiffStats{}, ""
		f.Pending = true
		out = append(out, f)
	}
	return out
}

// addCommit puts a commit created by an intent at the top of the log, moving
// the HEAD and branch labels onto it.
func addCommit(s *Snapshot, c backend.Commit, amend bool) bool {
	if len(s.Commits) == 0 {
		s.Commits = []backend.Commit{c}
		return true
	}
	head := s.Commits[0]
	if head.Hash == c.Hash {
		return false
	}
	var moved, kept []backend.Ref
	for _, r := range head.Refs {
		if r.Kind == backend.RefKindHead || r.Kind == backend.RefKindBranch {
			r.Hash = c.Hash
			moved = append(moved, r)
		} else {
			kept = append(kept, r)
		}
	}
	c.Refs = moved
	head.Refs = kept
	if amend {
		s.Commits = append([]backend.Commit{c}, s.Commits[1:]...)
		return true
	}
	s.Commits = append([]backend.Commit{c, head}, s.Commits[1:]...)
	if s.Tracking.Upstream != nil {
		up := *s.Tracking.Upstream
		up.Ahead++
		s.Tracking.Upstream = &up
	}
	return true
}

func addStats(a, b backend.DiffStats) backend.DiffStats {
	if !a.Known || !b.Known {
		return backend.DiffStats{}
	}
	return backend.DiffStats{Added: a.Added + b.Added, Removed: a.Removed + b.Removed, Known: true}
}
