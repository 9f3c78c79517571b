package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/thiagokokada/siori-go/internal/engine"
	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
)

const pendingMarker = "…"

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	footer := m.renderFooter()
	avail := max(m.height-2-len(footer), 1)
	var body []string
	switch m.mode {
	case modeDiff:
		d := m.diff
		d.Height = max(avail-1, 1)
		body = append([]string{m.st.bright.Render(m.diffTitle)}, strings.Split(d.View(), "\n")...)
	case modeRepoSelect:
		body = m.renderRepoSelect()
	default:
		if m.tab == tabFiles {
			body = m.renderFiles()
		} else {
			body = m.renderLog()
		}
	}
	if len(body) > avail {
		body = body[:avail]
	}
	for _, line := range body {
		b.WriteString(m.fit(line))
		b.WriteByte('\n')
	}
	for i := len(body); i < avail; i++ {
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(footer, "\n"))
	return b.String()
}

func (m model) fit(line string) string {
	if m.width <= 0 {
		return line
	}
	return ansi.Truncate(line, m.width, pendingMarker)
}

func (m model) renderHeader() string {
	name := "(no repository)"
	if m.eng != nil {
		name = filepath.Base(m.eng.Repo())
	}
	tabs := []string{"Files", "Log"}
	for i, t := range tabs {
		if tab(i) == m.tab {
			tabs[i] = m.st.activeTab.Render(t)
		} else {
			tabs[i] = m.st.dim.Render(t)
		}
	}
	return m.st.bright.Render(" "+name+" ") + "  " + strings.Join(tabs, " | ")
}

// listHeight is the number of body lines available to a list.
func (m model) listHeight() int {
	return max(m.height-2-len(m.renderFooter()), 1)
}

// visible returns the window [start, end) of n items that keeps sel in a
// view of h lines.
func visible(n, sel, h int) (int, int) {
	if n <= h {
		return 0, n
	}
	start := max(sel-h/2, 0)
	start = min(start, n-h)
	return start, start + h
}

func (m model) renderFiles() []string {
	if m.snap == nil || m.snap.RefreshedAt.IsZero() {
		return []string{m.st.dim.Render("Loading…")}
	}
	var lines []string
	var selLine int
	staged := 0
	for _, r := range m.rows {
		if r.staged {
			staged++
		}
	}
	lines = append(lines, m.st.staged.Render(fmt.Sprintf("Staged (%d)", staged)))
	for i, r := range m.rows {
		if i == staged {
			lines = append(lines, m.st.modified.Render(fmt.Sprintf("Changes (%d)", len(m.rows)-staged)))
		}
		if i == m.fileSel {
			selLine = len(lines)
		}
		lines = append(lines, m.renderFileRow(r, i == m.fileSel))
	}
	if staged == len(m.rows) {
		lines = append(lines, m.st.modified.Render("Changes (0)"))
	}
	if len(m.rows) == 0 {
		lines = append(lines, m.st.dim.Render("  Working tree clean"))
	}
	start, end := visible(len(lines), selLine, m.listHeight())
	return lines[start:end]
}

func (m model) renderFileRow(r fileRow, selected bool) string {
	change := r.file.Worktree
	stats := r.file.WorktreeStats
	style := m.st.modified
	if r.staged {
		change, stats, style = r.file.Index, r.file.IndexStats, m.st.staged
	} else if change == backend.ChangeUntracked {
		style = m.st.untracked
	}
	line := "  " + style.Render(changeLetter(change)+" "+r.file.Path)
	if r.file.OrigPath != "" && r.staged {
		line += m.st.dim.Render(" ← " + r.file.OrigPath)
	}
	if stats.Known && (stats.Added > 0 || stats.Removed > 0) {
		line += "  " + m.st.staged.Render(fmt.Sprintf("+%d", stats.Added)) +
			" " + m.st.untracked.Render(fmt.Sprintf("-%d", stats.Removed))
	}
	if r.file.Pending {
		line += " " + m.st.dim.Render(pendingMarker)
	}
	if selected {
		return m.st.selected.Render(line)
	}
	return line
}

func changeLetter(c backend.Change) string {
	switch c {
	case backend.ChangeAdded:
		return "A"
	case backend.ChangeDeleted:
		return "D"
	case backend.ChangeRenamed:
		return "R"
	case backend.ChangeUntracked:
		return "?"
	case backend.ChangeUnmerged:
		return "U"
	default:
		return "M"
	}
}

func (m model) renderLog() []string {
	if m.snap == nil || m.snap.RefreshedAt.IsZero() {
		return []string{m.st.dim.Render("Loading…")}
	}
	commits := m.snap.Commits
	if len(commits) == 0 {
		return []string{m.st.dim.Render("No commits yet")}
	}
	var lines []string
	if m.snap.GraphErr != nil {
		lines = append(lines, m.st.dim.Render("graph unavailable: "+m.snap.GraphErr.Error()))
	}
	offset := len(lines)
	unpushed := unpushedCommits(m.snap)
	now := m.now()
	for i, c := range commits {
		var graph string
		if m.snap.GraphErr == nil && m.snap.Graph != nil {
			graph = m.renderCells(m.snap.Graph.RenderRow(i)) + " "
		}
		subject := m.st.text.Render(c.Subject())
		if _, ok := unpushed[c.Hash]; ok {
			subject = m.st.bright.Render(c.Subject())
		}
		line := graph + m.st.info.Render(c.ShortHash()) + m.renderRefs(c.Refs) + " " + subject +
			m.st.dim.Render(fmt.Sprintf("  %s, %s", c.Author.Name, git.RelativeTime(c.Committer.When, now)))
		if i == m.logSel {
			line = m.st.selected.Render(line)
		}
		lines = append(lines, line)
	}
	if m.snap.GraphErr == nil {
		if cells := m.snap.Graph.RenderBoundary(); cells != nil {
			lines = append(lines, m.renderCells(cells))
		}
	}
	start, end := visible(len(lines), offset+m.logSel, m.listHeight())
	return lines[start:end]
}

func (m model) renderCells(cells []git.Cell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.Glyph == ' ' {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(m.st.lane(c.Lane).Render(string(c.Glyph)))
	}
	return b.String()
}

func (m model) renderRefs(refs []backend.Ref) string {
	var parts []string
	for _, r := range refs {
		switch r.Kind {
		case backend.RefKindHead:
			parts = append(parts, m.st.bright.Render("HEAD"))
		case backend.RefKindBranch:
			parts = append(parts, m.st.staged.Render(r.Name))
		case backend.RefKindRemoteBranch:
			parts = append(parts, m.st.untracked.Render(r.Name))
		case backend.RefKindTag:
			parts = append(parts, m.st.tag.Render("tag: "+r.Name))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// unpushedCommits follows the first parents of HEAD for as many commits as
// the branch is ahead of its upstream.
func unpushedCommits(snap *engine.Snapshot) map[string]struct{} {
	out := map[string]struct{}{}
	head, ok := snap.Head()
	if !ok || snap.Tracking.Upstream == nil {
		return out
	}
	byHash := make(map[string]backend.Commit, len(snap.Commits))
	for _, c := range snap.Commits {
		byHash[c.Hash] = c
	}
	c := head
	for range snap.Tracking.Upstream.Ahead {
		out[c.Hash] = struct{}{}
		if len(c.Parents) == 0 {
			break
		}
		next, ok := byHash[c.Parents[0]]
		if !ok {
			break
		}
		c = next
	}
	return out
}

func (m model) renderRepoSelect() []string {
	lines := []string{m.st.bright.Render("Select repository")}
	current := ""
	if m.eng != nil {
		current = m.eng.Repo()
	}
	for i, path := range m.repos {
		label := "  " + path
		if path == current {
			label += m.st.dim.Render(" (current)")
		}
		if i == m.repoSel {
			label = m.st.selected.Render(label)
		}
		lines = append(lines, label)
	}
	return lines
}

func (m model) renderFooter() []string {
	var lines []string
	if m.banner != "" {
		style := m.st.infoBanner
		if m.bannerErr {
			style = m.st.errBanner
		}
		lines = append(lines, m.fit(style.Render(m.banner)))
	}
	switch m.mode {
	case modeCommit, modeAmend, modeTag, modeRemoteURL:
		lines = append(lines, m.input.View())
	}
	lines = append(lines, m.fit(m.renderStatus()))
	if m.showHints {
		lines = append(lines, m.fit(m.st.dim.Render(m.hints())))
	}
	return lines
}

func (m model) renderStatus() string {
	if m.snap == nil {
		return m.st.dim.Render("no repository")
	}
	t := m.snap.Tracking
	branch := t.Branch
	if t.Detached {
		branch = "HEAD (detached)"
	}
	parts := []string{m.st.info.Render(branch)}
	switch {
	case t.Upstream == nil:
		parts = append(parts, m.st.dim.Render("no upstream"))
	case t.Upstream.Ahead == 0 && t.Upstream.Behind == 0:
		parts = append(parts, m.st.dim.Render(t.Upstream.Name+" synced"))
	default:
		var ab []string
		if t.Upstream.Ahead > 0 {
			ab = append(ab, fmt.Sprintf("↑%d", t.Upstream.Ahead))
		}
		if t.Upstream.Behind > 0 {
			ab = append(ab, fmt.Sprintf("↓%d", t.Upstream.Behind))
		}
		parts = append(parts, m.st.modified.Render(t.Upstream.Name+" "+strings.Join(ab, " ")))
	}
	if len(m.snap.InFlight) > 0 {
		var names []string
		for _, in := range m.snap.InFlight {
			names = append(names, in.String())
		}
		parts = append(parts, m.st.dim.Render(pendingMarker+" "+strings.Join(names, ", ")))
	}
	return strings.Join(parts, "  ")
}

func (m model) hints() string {
	switch m.mode {
	case modeCommit, modeAmend, modeTag, modeRemoteURL:
		return "enter confirm · esc cancel"
	case modeRepoSelect:
		return "j/k move · enter open · esc back"
	case modeDiff:
		return "j/k scroll · n/N next/prev file · esc close"
	}
	if m.tab == tabFiles {
		return "space stage/unstage · enter diff · c commit · e amend · t tag · P push · p pull · tab log · R repos · q quit"
	}
	return "enter diff · t tag · x delete tag · T push tags · P push · p pull · tab files · R repos · q quit"
}
