package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

// fakeBackend keeps repository state in memory. hook runs before every call
// and may block or fail it.
type fakeBackend struct {
	root string

	mu       sync.Mutex
	files    []backend.FileEntry
	commits  []backend.Commit
	tags     []backend.TagRef
	tracking backend.Tracking
	calls    map[string]int
	hook     func(ctx context.Context, op string) error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return &fakeBackend{
		root:     t.TempDir(),
		calls:    make(map[string]int),
		tracking: backend.Tracking{Branch: "main"},
		commits: []backend.Commit{
			{Hash: "c2", Parents: []string{"c1"}, Message: "second", Refs: []backend.Ref{{Hash: "c2", Kind: backend.RefKindHead, Name: "HEAD"}, {Hash: "c2", Kind: backend.RefKindBranch, Name: "main"}}},
			{Hash: "c1", Message: "first"},
		},
		files: []backend.FileEntry{
			{Path: "a.txt", Worktree: backend.ChangeModified, WorktreeStats: backend.DiffStats{Added: 2, Removed: 1, Known: true}},
			{Path: "b.txt", Index: backend.ChangeAdded, IndexStats: backend.DiffStats{Added: 3, Known: true}},
			{Path: "new.txt", Worktree: backend.ChangeUntracked, WorktreeStats: backend.DiffStats{Added: 1, Known: true}},
		},
	}
}

func (f *fakeBackend) setHook(h func(ctx context.Context, op string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

func (f *fakeBackend) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	h := f.hook
	f.mu.Unlock()
	if h != nil {
		return h(ctx, op)
	}
	return nil
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) edit(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) RepoPath() string { return f.root }

func (f *fakeBackend) Status(ctx context.Context) ([]backend.FileEntry, error) {
	if err := f.enter(ctx, "status"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.FileEntry(nil), f.files...), nil
}

func (f *fakeBackend) Log(ctx context.Context, window int) ([]backend.Commit, error) {
	if err := f.enter(ctx, "log"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]backend.Commit(nil), f.commits...)
	if len(out) > window {
		out = out[:window]
	}
	backend.MarkBoundaries(out)
	return out, nil
}

func (f *fakeBackend) Tags(ctx context.Context) ([]backend.TagRef, error) {
	if err := f.enter(ctx, "tags"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.TagRef(nil), f.tags...), nil
}

func (f *fakeBackend) Tracking(ctx context.Context) (backend.Tracking, error) {
	if err := f.enter(ctx, "tracking"); err != nil {
		return backend.Tracking{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracking, nil
}

func (f *fakeBackend) Stage(ctx context.Context, path string) error {
	if err := f.enter(ctx, "stage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.files {
		if e.Path != path {
			continue
		}
		switch {
		case e.Worktree == backend.ChangeUntracked:
			e.Index = backend.ChangeAdded
		case e.Index == backend.ChangeNone:
			e.Index = e.Worktree
		}
		e.IndexStats, e.Worktree, e.WorktreeStats = e.WorktreeStats, backend.ChangeNone, backend.DiffStats{}
		f.files[i] = e
	}
	return nil
}

func (f *fakeBackend) Unstage(ctx context.Context, path string) error {
	if err := f.enter(ctx, "unstage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.files {
		if e.Path != path {
			continue
		}
		if e.Index == backend.ChangeAdded {
			e.Worktree = backend.ChangeUntracked
		} else {
			e.Worktree = e.Index
		}
		e.WorktreeStats, e.Index, e.IndexStats = e.IndexStats, backend.ChangeNone, backend.DiffStats{}
		f.files[i] = e
	}
	return nil
}

func (f *fakeBackend) Commit(ctx context.Context, message string) (backend.Commit, error) {
	return f.commit(ctx, "commit", message, false)
}

func (f *fakeBackend) Amend(ctx context.Context, message string) (backend.Commit, error) {
	return f.commit(ctx, "amend", message, true)
}

func (f *fakeBackend) commit(ctx context.Context, op, message string, amend bool) (backend.Commit, error) {
	if err := f.enter(ctx, op); err != nil {
		return backend.Commit{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := backend.Commit{
		Hash:    fmt.Sprintf("c%d", len(f.commits)+1+f.calls[op]*10),
		Message: message,
		Author:  backend.Signature{Name: "Test", When: time.Unix(1700000000, 0)},
	}
	rest := f.commits
	if amend {
		c.Parents = rest[0].Parents
		rest = rest[1:]
	} else if len(rest) > 0 {
		c.Parents = []string{rest[0].Hash}
	}
	if len(f.commits) > 0 {
		c.Refs = f.commits[0].Refs
	}
	f.commits = append([]backend.Commit{c}, stripRefs(rest)...)
	var kept []backend.FileEntry
	for _, e := range f.files {
		e.Index, e.IndexStats = backend.ChangeNone, backend.DiffStats{}
		if e.Worktree != backend.ChangeNone {
			kept = append(kept, e)
		}
	}
	f.files = kept
	return c, nil
}

func stripRefs(commits []backend.Commit) []backend.Commit {
	out := append([]backend.Commit(nil), commits...)
	if len(out) > 0 {
		out[0].Refs = nil
	}
	return out
}

func (f *fakeBackend) Push(ctx context.Context) error { return f.enter(ctx, "push") }
func (f *fakeBackend) Pull(ctx context.Context) error { return f.enter(ctx, "pull") }

func (f *fakeBackend) AddRemote(ctx context.Context, name, url string) error {
	return f.enter(ctx, "add remote")
}

func (f *fakeBackend) CreateTag(ctx context.Context, name, target string) error {
	if err := f.enter(ctx, "create tag"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, backend.TagRef{Name: name, Target: f.commits[0].Hash})
	return nil
}

func (f *fakeBackend) DeleteTag(ctx context.Context, name string) error {
	if err := f.enter(ctx, "delete tag"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []backend.TagRef
	for _, t := range f.tags {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	f.tags = kept
	return nil
}

func (f *fakeBackend) PushTags(ctx context.Context) error { return f.enter(ctx, "push tags") }

func (f *fakeBackend) CommitDiff(ctx context.Context, hash string) (string, error) {
	return "", f.enter(ctx, "commit diff")
}

func (f *fakeBackend) FileDiff(ctx context.Context, path string, staged bool) (string, error) {
	return "", f.enter(ctx, "file diff")
}

// gate blocks the calls named in ops until released.
type gate struct {
	ops     map[string]bool
	entered chan string
	release chan struct{}
	once    sync.Once
}

func newGate(ops ...string) *gate {
	g := &gate{ops: make(map[string]bool), entered: make(chan string, 16), release: make(chan struct{})}
	for _, op := range ops {
		g.ops[op] = true
	}
	return g
}

func (g *gate) hook(ctx context.Context, op string) error {
	if !g.ops[op] {
		return nil
	}
	g.entered <- op
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func (g *gate) waitEntered(t *testing.T, op string) {
	t.Helper()
	select {
	case got := <-g.entered:
		if got != op {
			t.Fatalf("expected %s to block, got %s", op, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", op)
	}
}

func newTestEngine(t *testing.T, fb *fakeBackend) *Engine {
	t.Helper()
	e := New(RepositoryContext{Backend: fb}, Options{RetryDelay: time.Millisecond})
	t.Cleanup(e.Close)
	return e
}

func mustRefresh(t *testing.T, e *Engine) *Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := e.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return snap
}

// eventually refreshes until cond holds.
func eventually(t *testing.T, e *Engine, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := mustRefresh(t, e)
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func subscribe(t *testing.T, e *Engine) *eventLog {
	t.Helper()
	l := &eventLog{ch: make(chan Event, 64)}
	cancel := e.Subscribe(func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		select {
		case l.ch <- ev:
		default:
		}
	})
	t.Cleanup(cancel)
	return l
}

func (l *eventLog) waitErr(t *testing.T) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			if ev.Err != nil {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for error event")
		}
	}
}

func (l *eventLog) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []error
	for _, ev := range l.events {
		if ev.Err != nil {
			out = append(out, ev.Err)
		}
	}
	return out
}
