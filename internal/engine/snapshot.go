package engine

import (
	"cmp"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
)

// FileView is a file entry as displayed. Pending marks entries whose state
// comes from an unconfirmed intent.
type FileView struct {
	backend.FileEntry
	Pending bool
}

// Snapshot is an immutable view of the repository. Callers must not modify
// the slices it holds.
type Snapshot struct {
	Repo       string
	Generation uint64

	Tracking backend.Tracking
	// Files is sorted by path and holds each path once.
	Files    []FileView
	Commits  []backend.Commit
	Tags     []backend.TagRef

	// Graph is nil when GraphErr is set; the log is then shown flat.
	Graph    *git.Layout
	GraphErr error

	InFlight    []Intent
	RefreshedAt time.Time
}

// File returns the entry for path.
func (s *Snapshot) File(path string) (FileView, bool) {
	if s == nil {
		return FileView{}, false
	}
	i := sort.Search(len(s.Files), func(i int) bool { return s.Files[i].Path >= path })
	if i < len(s.Files) && s.Files[i].Path == path {
		return s.Files[i], true
	}
	return FileView{}, false
}

// Staged lists entries with index changes, in path order.
func (s *Snapshot) Staged() []FileView {
	return s.filter(FileView.HasStaged)
}

// Unstaged lists entries with work tree changes, in path order. A path that is
// partially staged appears in both lists.
func (s *Snapshot) Unstaged() []FileView {
	return s.filter(FileView.HasUnstaged)
}

func (s *Snapshot) filter(keep func(FileView) bool) []FileView {
	if s == nil {
		return nil
	}
	var out []FileView
	for _, f := range s.Files {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Snapshot) HasTag(name string) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Head returns the newest commit in the window.
func (s *Snapshot) Head() (backend.Commit, bool) {
	if s == nil || len(s.Commits) == 0 {
		return backend.Commit{}, false
	}
	return s.Commits[0], true
}

// Busy reports whether an intent of the given kind is unresolved.
func (s *Snapshot) Busy(kind IntentKind) bool {
	if s == nil {
		return false
	}
	for _, in := range s.InFlight {
		if in.Kind == kind {
			return true
		}
	}
	return false
}

// fetched is the raw result of one refresh.
type fetched struct {
	files    []backend.FileEntry
	commits  []backend.Commit
	tags     []backend.TagRef
	tracking backend.Tracking
}

// base is the last confirmed repository state, before pending intents are
// applied on top of it.
type base struct {
	fetched
	graph    *git.Layout
	graphErr error
	at       time.Time
}

func newBase(f fetched, prev *base, at time.Time) *base {
	f.files = normalizeFiles(f.files)
	b := &base{fetched: f, at: at}
	if prev != nil && sameHistory(prev.commits, f.commits) {
		b.graph, b.graphErr = prev.graph, prev.graphErr
	} else {
		b.graph, b.graphErr = git.BuildGraph(f.commits)
	}
	return b
}

func sameHistory(a, b []backend.Commit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Hash != b[i].Hash || len(a[i].Parents) != len(b[i].Parents) {
			return false
		}
		for j := range a[i].Parents {
			if a[i].Parents[j] != b[i].Parents[j] {
				return false
			}
		}
	}
	return true
}

// normalizeFiles orders files by path and keeps the first entry reported
// for each path.
func normalizeFiles(files []backend.FileEntry) []backend.FileEntry {
	out := slices.Clone(files)
	slices.SortStableFunc(out, func(a, b backend.FileEntry) int { return cmp.Compare(a.Path, b.Path) })
	return slices.CompactFunc(out, func(a, b backend.FileEntry) bool {
		if a.Path != b.Path {
			return false
		}
		slog.Debug("duplicate status entry ignored", slog.String("path", b.Path))
		return true
	})
}

func sortTags(tags []backend.TagRef) {
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
}
