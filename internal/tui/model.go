package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thiagokokada/siori-go/internal/engine"
	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
	"github.com/thiagokokada/siori-go/internal/highlight"
	"github.com/thiagokokada/siori-go/internal/repos"
)

const (
	submitTimeout = 5 * time.Second
	diffTimeout   = 30 * time.Second
)

type tab int

const (
	tabFiles tab = iota
	tabLog
)

type mode int

const (
	modeNormal mode = iota
	modeCommit
	modeAmend
	modeTag
	modeRemoteURL
	modeRepoSelect
	modeDiff
)

// eventMsg carries an engine event into the program.
type eventMsg struct {
	ev engine.Event
}

type switchedMsg struct {
	eng    *engine.Engine
	snap   *engine.Snapshot
	cancel func()
	err    error
}

type submittedMsg struct {
	intent engine.Intent
	err    error
}

type diffMsg struct {
	title    string
	text     string
	sections []git.FileSection
	err      error
}

// fileRow is one line of the Files tab. A path with both staged and
// unstaged changes has a row in each section.
type fileRow struct {
	file   engine.FileView
	staged bool
}

type model struct {
	ws        *engine.Workspace
	eng       *engine.Engine
	unsub     func()
	snap      *engine.Snapshot
	send      func(tea.Msg)
	st        styles
	hl        *highlight.Highlighter
	showHints bool
	baseDir   string
	now       func() time.Time

	width, height int

	tab     tab
	mode    mode
	fileSel int
	logSel  int
	rows    []fileRow

	input     textinput.Model
	tagTarget string

	repos   []string
	repoSel int

	diff      viewport.Model
	diffTitle string
	sections  []git.FileSection

	banner    string
	bannerErr bool
}

func newModel(ws *engine.Workspace, opts Options, send func(tea.Msg)) model {
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	return model{
		ws:        ws,
		send:      send,
		st:        newStyles(opts.Config.Colors),
		hl:        opts.Highlighter,
		showHints: opts.Config.UI.ShowHints,
		baseDir:   baseDir,
		now:       time.Now,
		width:     80,
		height:    24,
		diff:      viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	if e := m.ws.Current(); e != nil {
		return m.attach(e)
	}
	return nil
}

// attach subscribes to e and reports its current projection. Anything
// published after the subscription arrives as an eventMsg.
func (m model) attach(e *engine.Engine) tea.Cmd {
	send := m.send
	return func() tea.Msg {
		cancel := e.Subscribe(func(ev engine.Event) {
			if send != nil {
				send(eventMsg{ev: ev})
			}
		})
		return switchedMsg{eng: e, snap: e.Projection(), cancel: cancel}
	}
}

func (m model) switchRepo(path string) tea.Cmd {
	ws := m.ws
	return func() tea.Msg {
		e, err := ws.Switch(path)
		if err != nil {
			return switchedMsg{err: err}
		}
		return m.attach(e)()
	}
}

func (m model) submit(in engine.Intent) tea.Cmd {
	e := m.eng
	if e == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return submittedMsg{intent: in, err: e.Submit(ctx, in)}
	}
}

func (m model) loadFileDiff(row fileRow) tea.Cmd {
	e := m.eng
	if e == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), diffTimeout)
		defer cancel()
		text, err := e.Backend().FileDiff(ctx, row.file.Path, row.staged)
		if err != nil {
			return diffMsg{err: err}
		}
		out, sections := git.LocalDiff(row.file.Path, row.staged, text)
		return diffMsg{title: row.file.Path, text: out, sections: sections}
	}
}

func (m model) loadCommitDiff(c backend.Commit) tea.Cmd {
	e := m.eng
	if e == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), diffTimeout)
		defer cancel()
		text, err := e.Backend().CommitDiff(ctx, c.Hash)
		if err != nil {
			return diffMsg{err: err}
		}
		out, sections := git.CommitDiff(c, text)
		return diffMsg{title: c.ShortHash() + " " + c.Subject(), text: out, sections: sections}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resizeDiff()
		return m, nil
	case eventMsg:
		return m.handleEvent(msg.ev)
	case switchedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		if m.eng == msg.eng {
			if msg.cancel != nil {
				msg.cancel()
			}
		} else {
			if m.eng != nil {
				m.setInfo("Switched to: " + filepath.Base(msg.eng.Repo()))
			}
			if m.unsub != nil {
				m.unsub()
			}
			m.eng, m.unsub = msg.eng, msg.cancel
			m.snap, m.rows = nil, nil
			m.fileSel, m.logSel = 0, 0
		}
		m.applySnapshot(msg.snap)
		return m, nil
	case submittedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		return m, nil
	case diffMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.mode = modeDiff
		m.diffTitle = msg.title
		m.sections = msg.sections
		m.resizeDiff()
		m.diff.SetContent(m.hl.Diff(msg.text))
		m.diff.GotoTop()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleEvent(ev engine.Event) (tea.Model, tea.Cmd) {
	if ev.Source != m.eng {
		// Late event from an engine that was replaced.
		return m, nil
	}
	m.applySnapshot(ev.Snapshot)
	if ev.Err == nil {
		return m, nil
	}
	if errors.Is(ev.Err, backend.ErrNoRemote) && m.mode == modeNormal {
		m.openInput(modeRemoteURL, "Remote URL: ", "")
		m.setInfo("No remote configured. Enter a URL to add it as origin and push.")
		return m, textinput.Blink
	}
	m.setError(ev.Err)
	return m, nil
}

// applySnapshot shows snap unless a newer one from the same engine is
// already shown.
func (m *model) applySnapshot(snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	if m.snap != nil && snap.Generation < m.snap.Generation {
		return
	}
	selected, hadSelection := m.selectedRow()
	m.snap = snap
	m.rows = buildRows(snap)
	if hadSelection {
		m.fileSel = reselect(m.rows, selected, m.fileSel)
	}
	m.fileSel = clamp(m.fileSel, len(m.rows))
	m.logSel = clamp(m.logSel, len(snap.Commits))
}

func buildRows(snap *engine.Snapshot) []fileRow {
	var rows []fileRow
	for _, f := range snap.Staged() {
		rows = append(rows, fileRow{file: f, staged: true})
	}
	for _, f := range snap.Unstaged() {
		rows = append(rows, fileRow{file: f})
	}
	return rows
}

// reselect keeps the cursor on the same path when it moves between
// sections, falling back to the old position.
func reselect(rows []fileRow, prev fileRow, idx int) int {
	if i := slices.IndexFunc(rows, func(r fileRow) bool {
		return r.file.Path == prev.file.Path && r.staged == prev.staged
	}); i >= 0 {
		return i
	}
	if i := slices.IndexFunc(rows, func(r fileRow) bool { return r.file.Path == prev.file.Path }); i >= 0 {
		return i
	}
	return idx
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	return min(i, n-1)
}

func (m model) selectedRow() (fileRow, bool) {
	if m.fileSel < 0 || m.fileSel >= len(m.rows) {
		return fileRow{}, false
	}
	return m.rows[m.fileSel], true
}

func (m model) selectedCommit() (backend.Commit, bool) {
	if m.snap == nil || m.logSel < 0 || m.logSel >= len(m.snap.Commits) {
		return backend.Commit{}, false
	}
	return m.snap.Commits[m.logSel], true
}

func (m *model) setError(err error) {
	m.banner = err.Error()
	m.bannerErr = true
}

func (m *model) setInfo(s string) {
	m.banner = s
	m.bannerErr = false
}

func (m *model) openInput(md mode, prompt, value string) {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.CharLimit = 0
	ti.SetValue(value)
	ti.CursorEnd()
	ti.Focus()
	m.input = ti
	m.mode = md
}

func (m *model) resizeDiff() {
	m.diff.Width = m.width
	m.diff.Height = max(m.listHeight()-1, 1)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeCommit, modeAmend, modeTag, modeRemoteURL:
		return m.handleInputKey(msg)
	case modeRepoSelect:
		return m.handleRepoKey(msg)
	case modeDiff:
		return m.handleDiffKey(msg)
	}

	key := keyString(msg)
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.banner = ""
		return m, nil
	case "tab":
		if m.tab == tabFiles {
			m.tab = tabLog
		} else {
			m.tab = tabFiles
		}
		return m, nil
	case "j", "down":
		m.move(1)
		return m, nil
	case "k", "up":
		m.move(-1)
		return m, nil
	case "r":
		if m.eng != nil {
			m.eng.RequestRefresh()
		}
		return m, nil
	case "R":
		m.openRepoSelect()
		return m, nil
	}
	if m.eng == nil {
		m.setInfo("No repository selected. Press R to choose one.")
		return m, nil
	}

	switch key {
	case " ":
		row, ok := m.selectedRow()
		if m.tab != tabFiles || !ok {
			return m, nil
		}
		if row.staged {
			return m, m.submit(engine.Unstage(row.file.Path))
		}
		return m, m.submit(engine.Stage(row.file.Path))
	case "enter":
		if m.tab == tabFiles {
			if row, ok := m.selectedRow(); ok {
				return m, m.loadFileDiff(row)
			}
			return m, nil
		}
		if c, ok := m.selectedCommit(); ok {
			return m, m.loadCommitDiff(c)
		}
		return m, nil
	case "c":
		m.openInput(modeCommit, "Commit message: ", "")
		return m, textinput.Blink
	case "e":
		head, ok := m.snap.Head()
		if !ok {
			m.setInfo("Nothing to amend yet.")
			return m, nil
		}
		m.openInput(modeAmend, "Amend message: ", strings.TrimSpace(head.Message))
		return m, textinput.Blink
	case "t":
		m.tagTarget = ""
		if m.tab == tabLog {
			if c, ok := m.selectedCommit(); ok {
				m.tagTarget = c.Hash
			}
		}
		m.openInput(modeTag, "Tag name: ", "")
		return m, textinput.Blink
	case "x":
		name, ok := m.selectedTag()
		if !ok {
			m.setInfo("No tag on the selected commit.")
			return m, nil
		}
		return m, m.submit(engine.DeleteTag(name))
	case "T":
		return m, m.submit(engine.PushTags())
	case "P":
		return m, m.submit(engine.Push())
	case "p":
		return m, m.submit(engine.Pull())
	}
	return m, nil
}

// selectedTag is the first tag on the selected commit of the Log tab, or on
// HEAD from the Files tab.
func (m model) selectedTag() (string, bool) {
	c, ok := m.selectedCommit()
	if m.tab == tabFiles {
		c, ok = m.snap.Head()
	}
	if !ok {
		return "", false
	}
	for _, r := range c.Refs {
		if r.Kind == backend.RefKindTag {
			return r.Name, true
		}
	}
	return "", false
}

func (m *model) move(delta int) {
	n := len(m.rows)
	sel := &m.fileSel
	if m.tab == tabLog {
		sel = &m.logSel
		n = 0
		if m.snap != nil {
			n = len(m.snap.Commits)
		}
	}
	if n == 0 {
		return
	}
	*sel = ((*sel+delta)%n + n) % n
}

func (m model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.mode == modeRemoteURL {
			m.setInfo("Cancelled")
		}
		m.mode = modeNormal
		m.input.Blur()
		return m, nil
	case "enter":
		value := m.input.Value()
		md := m.mode
		m.mode = modeNormal
		m.input.Blur()
		switch md {
		case modeCommit:
			return m, m.submit(engine.Commit(value))
		case modeAmend:
			return m, m.submit(engine.Amend(value))
		case modeTag:
			return m, m.submit(engine.CreateTag(strings.TrimSpace(value), m.tagTarget))
		case modeRemoteURL:
			return m, m.submit(engine.AddRemoteAndPush(strings.TrimSpace(value)))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) openRepoSelect() {
	m.repos = repos.Detect(m.baseDir)
	m.repoSel = 0
	if m.eng != nil {
		if i := slices.Index(m.repos, m.eng.Repo()); i >= 0 {
			m.repoSel = i
		}
	}
	if len(m.repos) == 0 {
		m.setInfo(fmt.Sprintf("No repositories found under %s", m.baseDir))
		return
	}
	m.mode = modeRepoSelect
}

func (m model) handleRepoKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyString(msg) {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q":
		m.mode = modeNormal
	case "j", "down":
		if n := len(m.repos); n > 0 {
			m.repoSel = (m.repoSel + 1) % n
		}
	case "k", "up":
		if n := len(m.repos); n > 0 {
			m.repoSel = (m.repoSel - 1 + n) % n
		}
	case "enter":
		m.mode = modeNormal
		if m.repoSel >= len(m.repos) {
			return m, nil
		}
		path := m.repos[m.repoSel]
		if m.eng != nil && path == m.eng.Repo() {
			return m, nil
		}
		return m, m.switchRepo(path)
	}
	return m, nil
}

func (m model) handleDiffKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyString(msg) {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "enter":
		m.mode = modeNormal
		return m, nil
	case "j", "down":
		m.diff.LineDown(1)
		return m, nil
	case "k", "up":
		m.diff.LineUp(1)
		return m, nil
	case "n":
		m.jumpSection(1)
		return m, nil
	case "N":
		m.jumpSection(-1)
		return m, nil
	}
	var cmd tea.Cmd
	m.diff, cmd = m.diff.Update(msg)
	return m, cmd
}

// jumpSection scrolls the diff to the next (dir > 0) or previous file.
func (m *model) jumpSection(dir int) {
	top := m.diff.YOffset
	if dir > 0 {
		for _, s := range m.sections {
			if s.Line-1 > top {
				m.diff.SetYOffset(s.Line - 1)
				return
			}
		}
		return
	}
	for i := len(m.sections) - 1; i >= 0; i-- {
		if l := m.sections[i].Line - 1; l < top {
			m.diff.SetYOffset(l)
			return
		}
	}
}
