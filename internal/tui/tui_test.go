package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/siori-go/internal/config"
	"github.com/thiagokokada/siori-go/internal/engine"
	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
)

func newMemoryBackend(t *testing.T) (backend.Backend, billy.Filesystem) {
	t.Helper()
	ctx := context.Background()
	fs := memfs.New()
	repo, err := gitlib.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.User.Name = "Test"
	cfg.User.Email = "test@example.com"
	require.NoError(t, repo.SetConfig(cfg))

	b := backend.NewNative(repo)
	require.NoError(t, util.WriteFile(fs, "a.txt", []byte("one\n"), 0o644))
	require.NoError(t, b.Stage(ctx, "a.txt"))
	_, err = b.Commit(ctx, "init")
	require.NoError(t, err)

	require.NoError(t, util.WriteFile(fs, "a.txt", []byte("one\ntwo\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "new.txt", []byte("fresh\n"), 0o644))
	return b, fs
}

func newLoadedModel(t *testing.T) (model, *engine.Engine) {
	t.Helper()
	b, _ := newMemoryBackend(t)
	ws := engine.NewWorkspace(func(string) (backend.Backend, error) { return b, nil }, engine.Options{}, nil)
	t.Cleanup(ws.Close)
	e, err := ws.Switch(b.RepoPath())
	require.NoError(t, err)
	_, err = e.Refresh(context.Background())
	require.NoError(t, err)

	m := newModel(ws, Options{Config: config.Default()}, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 40})
	m, _ = update(t, m, m.Init()())
	require.Same(t, e, m.eng)
	return m, e
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok, "unexpected model type %T", next)
	return nm, cmd
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = update(t, m, keyMsg(k))
	}
	return m, cmd
}

func TestNormalizeFullWidth(t *testing.T) {
	t.Parallel()
	tests := map[rune]rune{
		'ａ': 'a',
		'ｚ': 'z',
		'Ｐ': 'P',
		'０': '0',
		'９': '9',
		'　': ' ',
		'j':  'j',
		'あ': 'あ',
	}
	for in, want := range tests {
		if got := normalizeFullWidth(in); got != want {
			t.Fatalf("normalizeFullWidth(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeyString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		msg  tea.KeyMsg
		want string
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ｊ")}, "j"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Ｔ")}, "T"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("　")}, " "},
		{tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, " "},
		{tea.KeyMsg{Type: tea.KeyTab}, "tab"},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, "ctrl+c"},
	}
	for _, tt := range tests {
		if got := keyString(tt.msg); got != tt.want {
			t.Fatalf("keyString(%v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestVisible(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, sel, h  int
		start, end int
	}{
		{5, 0, 10, 0, 5},
		{20, 0, 10, 0, 10},
		{20, 10, 10, 5, 15},
		{20, 19, 10, 10, 20},
	}
	for _, tt := range tests {
		start, end := visible(tt.n, tt.sel, tt.h)
		if start != tt.start || end != tt.end {
			t.Fatalf("visible(%d, %d, %d) = %d, %d", tt.n, tt.sel, tt.h, start, end)
		}
	}
}

func TestUnpushedCommits(t *testing.T) {
	t.Parallel()
	snap := &engine.Snapshot{
		Commits: []backend.Commit{
			{Hash: "c3", Parents: []string{"c2"}},
			{Hash: "c2", Parents: []string{"c1"}},
			{Hash: "c1"},
		},
		Tracking: backend.Tracking{Branch: "main", Upstream: &backend.Upstream{Name: "origin/main", Ahead: 2}},
	}
	got := unpushedCommits(snap)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "c3")
	assert.Contains(t, got, "c2")

	snap.Tracking.Upstream = nil
	assert.Empty(t, unpushedCommits(snap))
}

func TestFilesTabStagesSelection(t *testing.T) {
	t.Parallel()
	m, e := newLoadedModel(t)

	view := m.View()
	assert.Contains(t, view, "Staged (0)")
	assert.Contains(t, view, "Changes (2)")
	assert.Contains(t, view, "M a.txt  +1 -0")
	assert.Contains(t, view, "? new.txt")
	assert.Contains(t, view, "no upstream")

	m, cmd := press(t, m, " ")
	require.NotNil(t, cmd)
	sub, ok := cmd().(submittedMsg)
	require.True(t, ok)
	require.NoError(t, sub.err)
	assert.Equal(t, engine.Stage("a.txt"), sub.intent)

	snap, err := e.Refresh(context.Background())
	require.NoError(t, err)
	f, ok := snap.File("a.txt")
	require.True(t, ok)
	assert.True(t, f.HasStaged())

	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: m.eng, Snapshot: snap}})
	assert.Contains(t, m.View(), "Staged (1)")
	row, ok := m.selectedRow()
	require.True(t, ok)
	assert.Equal(t, "a.txt", row.file.Path, "cursor follows the staged path")
	assert.True(t, row.staged)
}

func TestRejectedIntentShowsBanner(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)

	m, cmd := press(t, m, "c")
	assert.Equal(t, modeCommit, m.mode)
	m, _ = press(t, m, "msg")
	assert.Equal(t, "msg", m.input.Value())
	m, cmd = press(t, m, "enter")
	assert.Equal(t, modeNormal, m.mode)
	require.NotNil(t, cmd)

	// Nothing is staged yet.
	m, _ = update(t, m, cmd())
	assert.True(t, m.bannerErr)
	assert.Contains(t, m.View(), "invalid intent")

	m, _ = press(t, m, "esc")
	assert.Empty(t, m.banner)
}

func TestStaleEventsAreDropped(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)
	before := m.snap

	older := *before
	older.Generation--
	older.Files = nil
	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: m.eng, Snapshot: &older}})
	assert.Same(t, before, m.snap)

	m, _ = update(t, m, eventMsg{ev: engine.Event{Snapshot: &engine.Snapshot{Repo: "/elsewhere", Generation: 99}}})
	assert.Same(t, before, m.snap)
}

func TestReplacedEngineEventsAreDropped(t *testing.T) {
	t.Parallel()
	m, old := newLoadedModel(t)
	ctx := context.Background()

	var late *engine.Snapshot
	for range 5 {
		snap, err := old.Refresh(ctx)
		require.NoError(t, err)
		late = snap
	}

	// Reopening the same repository starts a new engine with fresh
	// generations.
	fresh, err := m.ws.Switch(old.Repo())
	require.NoError(t, err)
	require.NotSame(t, old, fresh)
	m, _ = update(t, m, m.attach(fresh)())
	require.Same(t, fresh, m.eng)
	assert.Equal(t, "Switched to: "+filepath.Base(fresh.Repo()), m.banner)

	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: old, Snapshot: late}})
	assert.NotSame(t, late, m.snap)

	snap, err := fresh.Refresh(ctx)
	require.NoError(t, err)
	require.Less(t, snap.Generation, late.Generation)
	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: fresh, Snapshot: snap}})
	assert.Same(t, snap, m.snap)
}

func TestSwitchCancelsOldSubscription(t *testing.T) {
	t.Parallel()
	m, old := newLoadedModel(t)

	cancelled := 0
	m.unsub = func() { cancelled++ }
	fresh, err := m.ws.Switch(old.Repo())
	require.NoError(t, err)
	m, _ = update(t, m, m.attach(fresh)())
	assert.Equal(t, 1, cancelled)

	// Attaching the current engine again keeps a single subscription.
	reattached := 0
	m, _ = update(t, m, switchedMsg{eng: fresh, snap: fresh.Projection(), cancel: func() { reattached++ }})
	assert.Equal(t, 1, reattached)
	assert.Equal(t, 1, cancelled)
}

func TestNoRemotePromptsForURL(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)
	err := &engine.OperationError{Intent: engine.Push(), Err: fmt.Errorf("push: %w", backend.ErrNoRemote)}

	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: m.eng, Snapshot: m.snap, Err: err}})
	require.Equal(t, modeRemoteURL, m.mode)
	assert.False(t, m.bannerErr)

	m, _ = press(t, m, "esc")
	assert.Equal(t, modeNormal, m.mode)
	assert.Equal(t, "Cancelled", m.banner)

	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: m.eng, Snapshot: m.snap, Err: err}})
	m, _ = press(t, m, "git@example.com:r.git")
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	sub := cmd().(submittedMsg)
	assert.Equal(t, engine.AddRemoteAndPush("git@example.com:r.git"), sub.intent)
}

func TestLogTab(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)
	m.now = func() time.Time { return m.snap.Commits[0].Committer.When.Add(2 * time.Hour) }

	m, _ = press(t, m, "tab")
	view := m.View()
	assert.Contains(t, view, string(git.NodeGlyph))
	assert.Contains(t, view, "init")
	assert.Contains(t, view, "2 hours ago")
	assert.Contains(t, view, "HEAD")

	broken := *m.snap
	broken.Generation++
	broken.Graph = nil
	broken.GraphErr = &git.MalformedHistoryError{Hash: "abc", Reason: "cycle"}
	m, _ = update(t, m, eventMsg{ev: engine.Event{Source: m.eng, Snapshot: &broken}})
	view = m.View()
	assert.Contains(t, view, "graph unavailable")
	assert.NotContains(t, view, string(git.NodeGlyph))
	assert.Contains(t, view, "init")
}

func TestTagKeys(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)
	m, _ = press(t, m, "tab", "t")
	require.Equal(t, modeTag, m.mode)
	assert.Equal(t, m.snap.Commits[0].Hash, m.tagTarget)

	m, _ = press(t, m, "v1")
	m, cmd := press(t, m, "enter")
	sub := cmd().(submittedMsg)
	require.NoError(t, sub.err)
	assert.Equal(t, engine.CreateTag("v1", m.snap.Commits[0].Hash), sub.intent)

	m, _ = press(t, m, "x")
	assert.Equal(t, "No tag on the selected commit.", m.banner)
}

func TestDiffOverlay(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, modeDiff, m.mode)
	view := m.View()
	assert.Contains(t, view, "Local uncommitted changes")
	assert.Contains(t, view, "+two")

	m, _ = press(t, m, "esc")
	assert.Equal(t, modeNormal, m.mode)

	m, _ = update(t, m, diffMsg{err: errors.New("boom")})
	assert.Equal(t, modeNormal, m.mode)
	assert.Equal(t, "boom", m.banner)
}

func TestDiffSectionJumps(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)

	lines := make([]string, 200)
	for i := range lines {
		lines[i] = fmt.Sprintf(" line %d", i)
	}
	sections := []git.FileSection{{Path: "a", Line: 1}, {Path: "b", Line: 60}, {Path: "c", Line: 120}}
	m, _ = update(t, m, diffMsg{title: "t", text: strings.Join(lines, "\n"), sections: sections})
	require.Equal(t, modeDiff, m.mode)

	for _, step := range []struct {
		key  string
		want int
	}{
		{"n", 59}, {"n", 119}, {"n", 119}, {"N", 59}, {"N", 0}, {"N", 0},
	} {
		m, _ = press(t, m, step.key)
		assert.Equal(t, step.want, m.diff.YOffset, "after %q", step.key)
	}
}

func TestRepoSelect(t *testing.T) {
	t.Parallel()
	m, _ := newLoadedModel(t)
	base := t.TempDir()
	for _, dir := range []string{"one/.git", "two/.git"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, dir), 0o755))
	}
	m.baseDir = base

	m, _ = press(t, m, "R")
	require.Equal(t, modeRepoSelect, m.mode)
	assert.Equal(t, []string{filepath.Join(base, "one"), filepath.Join(base, "two")}, m.repos)
	m, _ = press(t, m, "ｊ")
	assert.Equal(t, 1, m.repoSel)
	assert.True(t, strings.Contains(m.View(), "Select repository"))

	m, _ = press(t, m, "esc")
	assert.Equal(t, modeNormal, m.mode)

	m.baseDir = filepath.Join(base, "missing")
	m, _ = press(t, m, "R")
	assert.Equal(t, modeNormal, m.mode)
	assert.Contains(t, m.banner, "No repositories found")
}
