// Package watch turns file system activity in a repository into refresh
// requests.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/thiagokokada/siori-go/internal/debounce"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	DefaultMaxWait  = 2 * time.Second
	DefaultInterval = 3 * time.Second
)

type Options struct {
	// Debounce is the quiet period that ends a burst of events.
	Debounce time.Duration
	// MaxWait bounds how long a continuous burst can delay a refresh.
	MaxWait time.Duration
	// Interval is the fallback refresh period. Negative disables it.
	Interval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Watcher sends a token to its signal channel when the work tree or the git
// metadata changes. Sends never block: a token already waiting covers the
// new change.
type Watcher struct {
	root   string
	gitDir string
	signal chan<- struct{}
	opts   Options

	fsw      *fsnotify.Watcher
	debounce *debounce.Debouncer
	ignore   gitignore.Matcher

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts watching the work tree at root.
func New(root string, signal chan<- struct{}, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		root:   root,
		signal: signal,
		opts:   opts.withDefaults(),
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	w.debounce = debounce.New(w.opts.Debounce, w.opts.MaxWait, w.notify)
	w.loadIgnore()

	if err := w.addTree(root); err != nil {
		return nil, errors.Join(fmt.Errorf("watch %s: %w", root, err), fsw.Close())
	}
	if gitDir := filepath.Join(root, ".git"); isDir(gitDir) {
		w.gitDir = gitDir
		if err := w.addGitDir(); err != nil {
			return nil, errors.Join(fmt.Errorf("watch %s: %w", gitDir, err), fsw.Close())
		}
	}

	w.wg.Add(1)
	go w.run()
	if w.opts.Interval > 0 {
		w.wg.Add(1)
		go w.tick()
	}
	return w, nil
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.debounce.Stop()
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) notify() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			w.track(ev)
			w.debounce.Trigger()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) tick() {
	defer w.wg.Done()
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.notify()
		}
	}
}

// relevant filters out events that cannot change what a refresh shows.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if shouldIgnoreWatchPath(ev.Name) {
		return false
	}
	if w.inGitDir(ev.Name) {
		return true
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[0] == ".git" {
		// A .git file (worktree or submodule); its metadata lives elsewhere.
		return false
	}
	return !w.ignore.Match(parts, isDir(ev.Name))
}

// track keeps the watch list in step with created directories and changed
// ignore rules.
func (w *Watcher) track(ev fsnotify.Event) {
	if filepath.Base(ev.Name) == gitignoreFile {
		w.loadIgnore()
	}
	if ev.Op&fsnotify.Create == 0 || !isDir(ev.Name) {
		return
	}
	var err error
	if w.inGitDir(ev.Name) {
		err = w.addRecursive(ev.Name, nil)
	} else {
		err = w.addTree(ev.Name)
	}
	if err != nil {
		slog.Warn("watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
	}
}

func (w *Watcher) inGitDir(name string) bool {
	return w.gitDir != "" && (name == w.gitDir || strings.HasPrefix(name, w.gitDir+string(filepath.Separator)))
}

// addTree watches dir and its subdirectories, skipping git metadata and
// ignored directories.
func (w *Watcher) addTree(dir string) error {
	return w.addRecursive(dir, func(path string) bool {
		if filepath.Base(path) == ".git" {
			return true
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil || rel == "." {
			return false
		}
		return w.ignore.Match(strings.Split(filepath.ToSlash(rel), "/"), true)
	})
}

// addGitDir watches the files git rewrites on state changes: HEAD, the
// index, packed-refs and everything under refs. Objects are left out; a new
// commit always moves a ref as well.
func (w *Watcher) addGitDir() error {
	if err := w.fsw.Add(w.gitDir); err != nil {
		return err
	}
	refs := filepath.Join(w.gitDir, "refs")
	if !isDir(refs) {
		return nil
	}
	return w.addRecursive(refs, nil)
}

func (w *Watcher) addRecursive(dir string, skip func(string) bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Vanished or unreadable subdirectory.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skip != nil && skip(path) {
			return filepath.SkipDir
		}
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := w.fsw.Add(path); err != nil {
			if path == dir {
				return err
			}
			slog.Warn("watch directory", slog.String("path", path), slog.Any("error", err))
		}
		return nil
	})
}

const gitignoreFile = ".gitignore"

// loadIgnore reads the .gitignore files of the work tree and
// .git/info/exclude.
func (w *Watcher) loadIgnore() {
	patterns, err := gitignore.ReadPatterns(osfs.New(w.root), nil)
	if err != nil {
		slog.Warn("read .gitignore", slog.String("root", w.root), slog.Any("error", err))
	}
	w.ignore = gitignore.NewMatcher(patterns)
}

func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
