package git

import (
	"errors"
	"fmt"
	"sort"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

type SegmentKind uint8

const (
	// SegmentPass is a lane running straight through the row. On the commit's
	// own lane it is the continuation towards the first parent.
	SegmentPass SegmentKind = iota
	// SegmentBranchOut joins another lane (From, above the row) into the
	// commit's lane (To): the commit has several children.
	SegmentBranchOut
	// SegmentMergeIn opens a line from the commit's lane (From) to the lane
	// (To) of an additional parent below the row.
	SegmentMergeIn
	// SegmentTerminate ends the commit's lane: the commit has no parents.
	SegmentTerminate
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentBranchOut:
		return "branch-out"
	case SegmentMergeIn:
		return "merge-in"
	case SegmentTerminate:
		return "terminate"
	default:
		return "pass"
	}
}

type Segment struct {
	From int
	To   int
	Kind SegmentKind
}

type Row struct {
	Hash string
	Lane int
	// Tip is set when no lane above was waiting for this commit.
	Tip      bool
	Segments []Segment
	// Boundary is set when a parent of the commit is outside the window.
	Boundary bool
}

// Boundary is a lane still open after the last row; it leaves the visible
// window towards Hash.
type Boundary struct {
	Lane int
	Hash string
}

type Layout struct {
	Rows       []Row
	Width      int
	Boundaries []Boundary
}

var ErrMalformedHistory = errors.New("malformed history")

type MalformedHistoryError struct {
	Hash   string
	Parent string
	Reason string
}

func (e *MalformedHistoryError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("%s at %s: %s", ErrMalformedHistory, shortHash(e.Hash), e.Reason)
	}
	return fmt.Sprintf("%s at %s (parent %s): %s", ErrMalformedHistory, shortHash(e.Hash), shortHash(e.Parent), e.Reason)
}

func (e *MalformedHistoryError) Unwrap() error {
	return ErrMalformedHistory
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

// BuildGraph assigns lanes to commits listed newest first. Lane state is an
// ordered slice so the result only depends on the input order.
func BuildGraph(commits []backend.Commit) (*Layout, error) {
	inWindow := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		if _, dup := inWindow[c.Hash]; dup {
			return nil, &MalformedHistoryError{Hash: c.Hash, Reason: "commit listed twice"}
		}
		inWindow[c.Hash] = struct{}{}
	}

	g := graphBuilder{}
	layout := &Layout{Rows: make([]Row, 0, len(commits))}
	seen := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		parents := uniqueParents(c.Parents)
		for _, p := range parents {
			if p == c.Hash {
				return nil, &MalformedHistoryError{Hash: c.Hash, Parent: p, Reason: "commit is its own parent"}
			}
			if _, ok := seen[p]; ok {
				return nil, &MalformedHistoryError{Hash: c.Hash, Parent: p, Reason: "parent listed before child"}
			}
		}
		seen[c.Hash] = struct{}{}

		row := g.row(c.Hash, parents)
		for _, p := range parents {
			if _, ok := inWindow[p]; !ok {
				row.Boundary = true
				break
			}
		}
		layout.Rows = append(layout.Rows, row)
		layout.Width = max(layout.Width, g.width, row.Lane+1)
	}
	for i, h := range g.lanes {
		if h != "" {
			layout.Boundaries = append(layout.Boundaries, Boundary{Lane: i, Hash: h})
		}
	}
	return layout, nil
}

func uniqueParents(parents []string) []string {
	out := make([]string, 0, len(parents))
	for _, p := range parents {
		dup := false
		for _, q := range out {
			if q == p {
				dup = true
				break
			}
		}
		if !dup && p != "" {
			out = append(out, p)
		}
	}
	return out
}

type graphBuilder struct {
	// lanes[i] is the hash lane i waits for; "" marks a free slot.
	lanes []string
	width int
}

func (g *graphBuilder) row(hash string, parents []string) Row {
	above := append([]string(nil), g.lanes...)

	idx, tip := g.laneOf(hash), false
	if idx < 0 {
		tip = true
		idx = g.freeSlot(func(i int) bool { return true })
	}
	row := Row{Hash: hash, Lane: idx, Tip: tip}

	freed := make([]bool, len(g.lanes))
	for i, h := range g.lanes {
		if i != idx && h == hash {
			row.Segments = append(row.Segments, Segment{From: i, To: idx, Kind: SegmentBranchOut})
			g.lanes[i] = ""
			freed[i] = true
		}
	}

	if len(parents) == 0 {
		g.lanes[idx] = ""
		row.Segments = append(row.Segments, Segment{From: idx, To: idx, Kind: SegmentTerminate})
	} else {
		g.lanes[idx] = parents[0]
		row.Segments = append(row.Segments, Segment{From: idx, To: idx, Kind: SegmentPass})
		for _, p := range parents[1:] {
			target := -1
			for i, h := range g.lanes {
				if i != idx && h == p {
					target = i
					break
				}
			}
			if target < 0 {
				// Must be free both above and below the row.
				target = g.freeSlot(func(i int) bool {
					return i != idx && (i >= len(freed) || !freed[i])
				})
				g.lanes[target] = p
			}
			row.Segments = append(row.Segments, Segment{From: idx, To: target, Kind: SegmentMergeIn})
		}
	}

	for i, h := range above {
		if h != "" && i != idx && !freed[i] {
			row.Segments = append(row.Segments, Segment{From: i, To: i, Kind: SegmentPass})
		}
	}
	sort.Slice(row.Segments, func(a, b int) bool {
		sa, sb := row.Segments[a], row.Segments[b]
		if sa.From != sb.From {
			return sa.From < sb.From
		}
		if sa.To != sb.To {
			return sa.To < sb.To
		}
		return sa.Kind < sb.Kind
	})

	g.width = max(g.width, len(g.lanes))
	g.trim()
	return row
}

func (g *graphBuilder) laneOf(hash string) int {
	for i, h := range g.lanes {
		if h == hash {
			return i
		}
	}
	return -1
}

// freeSlot returns the lowest free lane accepted by ok, growing the lane
// list when none is available.
func (g *graphBuilder) freeSlot(ok func(int) bool) int {
	for i, h := range g.lanes {
		if h == "" && ok(i) {
			return i
		}
	}
	g.lanes = append(g.lanes, "")
	return len(g.lanes) - 1
}

func (g *graphBuilder) trim() {
	n := len(g.lanes)
	for n > 0 && g.lanes[n-1] == "" {
		n--
	}
	g.lanes = g.lanes[:n]
}
