package git

import "strings"

// Cell is one terminal column of a rendered graph row. Lane is the lane the
// glyph belongs to, for coloring; gap columns report the lane they lead to.
type Cell struct {
	Glyph rune
	Lane  int
}

const (
	NodeGlyph      = '●'
	MergeNodeGlyph = '◆'
	BoundaryGlyph  = '┆'
)

const (
	edgeUp uint8 = 1 << iota
	edgeDown
	edgeLeft
	edgeRight
)

var edgeGlyphs = map[uint8]rune{
	edgeUp:                                  '│',
	edgeDown:                                '│',
	edgeUp | edgeDown:                       '│',
	edgeLeft:                                '─',
	edgeRight:                               '─',
	edgeLeft | edgeRight:                    '─',
	edgeUp | edgeLeft:                       '╯',
	edgeUp | edgeRight:                      '╰',
	edgeDown | edgeLeft:                     '╮',
	edgeDown | edgeRight:                    '╭',
	edgeUp | edgeDown | edgeLeft:            '┤',
	edgeUp | edgeDown | edgeRight:           '├',
	edgeUp | edgeLeft | edgeRight:           '┴',
	edgeDown | edgeLeft | edgeRight:         '┬',
	edgeUp | edgeDown | edgeLeft | edgeRight: '┼',
}

// RenderRow draws row i of the layout as 2*Width-1 cells: lanes sit on even
// columns and the odd columns between them carry horizontal lines.
func (l *Layout) RenderRow(i int) []Cell {
	if l == nil || i < 0 || i >= len(l.Rows) || l.Width == 0 {
		return nil
	}
	row := l.Rows[i]
	cols := 2*l.Width - 1
	edges := make([]uint8, cols)
	lanes := make([]int, cols)
	for c := range lanes {
		lanes[c] = c / 2
	}

	horizontal := func(from, to, lane int) {
		lo, hi := min(from, to), max(from, to)
		for c := 2*lo + 1; c < 2*hi; c++ {
			edges[c] |= edgeLeft | edgeRight
			lanes[c] = lane
		}
	}
	for _, s := range row.Segments {
		switch s.Kind {
		case SegmentPass:
			edges[2*s.From] |= edgeUp | edgeDown
		case SegmentBranchOut:
			col := 2 * s.From
			edges[col] |= edgeUp
			if s.From > s.To {
				edges[col] |= edgeLeft
			} else {
				edges[col] |= edgeRight
			}
			horizontal(s.From, s.To, s.From)
		case SegmentMergeIn:
			col := 2 * s.To
			edges[col] |= edgeDown
			if s.To > s.From {
				edges[col] |= edgeLeft
			} else {
				edges[col] |= edgeRight
			}
			horizontal(s.From, s.To, s.To)
		}
	}

	cells := make([]Cell, cols)
	for c := range cells {
		cells[c] = Cell{Glyph: ' ', Lane: lanes[c]}
		if g, ok := edgeGlyphs[edges[c]]; ok {
			cells[c].Glyph = g
		}
	}
	node := NodeGlyph
	merges := 0
	for _, s := range row.Segments {
		if s.Kind == SegmentMergeIn {
			merges++
		}
	}
	if merges > 0 {
		node = MergeNodeGlyph
	}
	cells[2*row.Lane] = Cell{Glyph: node, Lane: row.Lane}
	return cells
}

// RenderBoundary draws the line shown below the last row for lanes that
// continue past the window. It returns nil when there are none.
func (l *Layout) RenderBoundary() []Cell {
	if l == nil || len(l.Boundaries) == 0 || l.Width == 0 {
		return nil
	}
	cells := make([]Cell, 2*l.Width-1)
	for c := range cells {
		cells[c] = Cell{Glyph: ' ', Lane: c / 2}
	}
	for _, b := range l.Boundaries {
		cells[2*b.Lane].Glyph = BoundaryGlyph
	}
	return cells
}

// CellsString joins the glyphs of cells, trimming trailing blanks.
func CellsString(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteRune(c.Glyph)
	}
	return strings.TrimRight(b.String(), " ")
}
