package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/thiagokokada/siori-go/internal/config"
)

type styles struct {
	text       lipgloss.Style
	bright     lipgloss.Style
	dim        lipgloss.Style
	info       lipgloss.Style
	staged     lipgloss.Style
	modified   lipgloss.Style
	untracked  lipgloss.Style
	tag        lipgloss.Style
	selected   lipgloss.Style
	activeTab  lipgloss.Style
	errBanner  lipgloss.Style
	infoBanner lipgloss.Style
	lanes      []lipgloss.Style
}

func color(c config.Color, def string) lipgloss.TerminalColor {
	spec := c.Spec(def)
	if spec == "" {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(spec)
}

func newStyles(c config.Colors) styles {
	fg := func(col config.Color, def string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(color(col, def))
	}
	info := color(c.Info, "4")
	s := styles{
		text:       fg(c.Text, ""),
		bright:     fg(c.TextBright, "15").Bold(true),
		dim:        fg(c.Dim, "8"),
		info:       fg(c.Info, "4"),
		staged:     fg(c.Staged, "2"),
		modified:   fg(c.Modified, "3"),
		untracked:  fg(c.Untracked, "1"),
		tag:        fg("", "5"),
		selected:   lipgloss.NewStyle().Background(color(c.SelectedBG, "8")),
		activeTab:  lipgloss.NewStyle().Bold(true).Underline(true).Foreground(info),
		errBanner:  lipgloss.NewStyle().Bold(true).Foreground(color(c.Untracked, "1")),
		infoBanner: lipgloss.NewStyle().Foreground(info),
	}
	for _, def := range []string{"4", "2", "3", "5", "6", "1"} {
		s.lanes = append(s.lanes, lipgloss.NewStyle().Foreground(lipgloss.Color(def)))
	}
	return s
}

func (s styles) lane(i int) lipgloss.Style {
	return s.lanes[i%len(s.lanes)]
}
