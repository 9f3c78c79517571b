// Package tui is the terminal interface of siori.
package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/thiagokokada/siori-go/internal/config"
	"github.com/thiagokokada/siori-go/internal/engine"
	"github.com/thiagokokada/siori-go/internal/highlight"
)

type Options struct {
	Config config.Config
	// Highlighter colors diffs; nil shows them plain.
	Highlighter *highlight.Highlighter
	// BaseDir is where the repository selector looks for repositories.
	BaseDir string
}

// Run shows the repository selected in ws until the user quits.
func Run(ws *engine.Workspace, opts Options) error {
	if ws.Current() == nil {
		return errors.New("no repository selected")
	}
	var p *tea.Program
	m := newModel(ws, opts, func(msg tea.Msg) { p.Send(msg) })
	p = tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
