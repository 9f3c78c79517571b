package engine

import (
	"io"
	"log/slog"
	"sync"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

// Opener opens the repository containing path.
type Opener func(path string) (backend.Backend, error)

// WatchFunc starts watching root, sending refresh tokens to signal until
// closed.
type WatchFunc func(root string, signal chan<- struct{}) (io.Closer, error)

// Workspace owns the engine of the selected repository and its watcher.
// Switching repositories replaces both.
type Workspace struct {
	open  Opener
	opts  Options
	watch WatchFunc

	mu      sync.Mutex
	engine  *Engine
	watcher io.Closer
}

// NewWorkspace returns an empty workspace. watch may be nil to disable file
// watching.
func NewWorkspace(open Opener, opts Options, watch WatchFunc) *Workspace {
	return &Workspace{open: open, opts: opts, watch: watch}
}

// Switch opens path and makes it the current repository. On failure the
// current repository stays selected.
func (w *Workspace) Switch(path string) (*Engine, error) {
	b, err := w.open(path)
	if err != nil {
		return nil, &UnavailableError{Repo: path, Err: err}
	}
	e := New(RepositoryContext{Root: b.RepoPath(), Backend: b}, w.opts)

	var watcher io.Closer
	if w.watch != nil {
		watcher, err = w.watch(e.Repo(), e.RefreshSignal())
		if err != nil {
			slog.Warn("file watching disabled", slog.String("repo", e.Repo()), slog.Any("error", err))
			watcher = nil
		}
	}

	w.mu.Lock()
	oldEngine, oldWatcher := w.engine, w.watcher
	w.engine, w.watcher = e, watcher
	w.mu.Unlock()

	if oldWatcher != nil {
		if err := oldWatcher.Close(); err != nil {
			slog.Debug("close watcher", slog.Any("error", err))
		}
	}
	if oldEngine != nil {
		oldEngine.Close()
	}
	slog.Info("repository selected", slog.String("repo", e.Repo()))
	e.RequestRefresh()
	return e, nil
}

// Current returns the engine of the selected repository, or nil.
func (w *Workspace) Current() *Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine
}

func (w *Workspace) Close() {
	w.mu.Lock()
	e, watcher := w.engine, w.watcher
	w.engine, w.watcher = nil, nil
	w.mu.Unlock()
	if watcher != nil {
		_ = watcher.Close()
	}
	if e != nil {
		e.Close()
	}
}
