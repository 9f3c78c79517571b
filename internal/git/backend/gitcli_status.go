package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type statusHeader struct {
	oid      string // "(initial)" on an unborn branch
	head     string // "(detached)" when HEAD is detached
	upstream string
	ahead    int
	behind   int
	hasAB    bool
}

func (g *gitCLI) Status(ctx context.Context) ([]FileEntry, error) {
	const op = "status"
	out, err := g.run(ctx, op, runOpts{noLocks: true},
		"status", "--porcelain=v2", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	entries, _, err := parseStatusV2(out)
	if err != nil {
		return nil, errorf(KindCommandFailed, op, "parse git status: %v", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	staged, err := g.numstat(ctx, true)
	if err != nil {
		return nil, err
	}
	unstaged, err := g.numstat(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := &entries[i]
		if e.HasStaged() {
			e.IndexStats = staged[e.Path]
		}
		switch e.Worktree {
		case ChangeNone, ChangeUnmerged:
		case ChangeUntracked:
			e.WorktreeStats = g.untrackedStats(e.Path)
		default:
			e.WorktreeStats = unstaged[e.Path]
		}
	}
	return entries, nil
}

func (g *gitCLI) numstat(ctx context.Context, cached bool) (map[string]DiffStats, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff", "--numstat", "-z"}
	if cached {
		args = append(args, "--cached")
	}
	out, err := g.run(ctx, "diff stats", runOpts{noLocks: true}, args...)
	if err != nil {
		return nil, err
	}
	stats, err := parseNumstatZ(out)
	if err != nil {
		return nil, errorf(KindCommandFailed, "diff stats", "parse numstat: %v", err)
	}
	return stats, nil
}

func (g *gitCLI) untrackedStats(path string) DiffStats {
	full := filepath.Join(g.path, filepath.FromSlash(path))
	info, err := os.Lstat(full)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxStatBytes {
		return DiffStats{}
	}
	data, err := os.ReadFile(full)
	if err != nil || isBinary(data) {
		return DiffStats{}
	}
	return DiffStats{Added: len(splitLines(blob{data: data})), Known: true}
}

// parseStatusV2 parses `git status --porcelain=v2 -z [--branch]` output.
func parseStatusV2(out string) ([]FileEntry, statusHeader, error) {
	var hdr statusHeader
	var entries []FileEntry
	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		rec := fields[i]
		if rec == "" {
			continue
		}
		switch rec[0] {
		case '#':
			parseStatusHeader(&hdr, rec)
		case '1':
			parts := strings.SplitN(rec, " ", 9)
			if len(parts) != 9 || len(parts[1]) != 2 {
				return nil, hdr, fmt.Errorf("malformed record %q", rec)
			}
			entries = append(entries, FileEntry{
				Path:     parts[8],
				Index:    changeFromXY(parts[1][0]),
				Worktree: changeFromXY(parts[1][1]),
			})
		case '2':
			parts := strings.SplitN(rec, " ", 10)
			if len(parts) != 10 || len(parts[1]) != 2 || i+1 >= len(fields) {
				return nil, hdr, fmt.Errorf("malformed rename record %q", rec)
			}
			i++
			entries = append(entries, FileEntry{
				Path:     parts[9],
				OrigPath: fields[i],
				Index:    changeFromXY(parts[1][0]),
				Worktree: changeFromXY(parts[1][1]),
			})
		case 'u':
			parts := strings.SplitN(rec, " ", 11)
			if len(parts) != 11 {
				return nil, hdr, fmt.Errorf("malformed unmerged record %q", rec)
			}
			entries = append(entries, FileEntry{
				Path:     parts[10],
				Index:    ChangeUnmerged,
				Worktree: ChangeUnmerged,
			})
		case '?':
			if len(rec) < 3 {
				return nil, hdr, fmt.Errorf("malformed untracked record %q", rec)
			}
			entries = append(entries, FileEntry{Path: rec[2:], Worktree: ChangeUntracked})
		default:
			// '!' ignored entries
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, hdr, nil
}

func parseStatusHeader(hdr *statusHeader, rec string) {
	key, value, _ := strings.Cut(strings.TrimPrefix(rec, "# "), " ")
	switch key {
	case "branch.oid":
		hdr.oid = value
	case "branch.head":
		hdr.head = value
	case "branch.upstream":
		hdr.upstream = value
	case "branch.ab":
		a, b, ok := strings.Cut(value, " ")
		if !ok {
			return
		}
		ahead, err1 := strconv.Atoi(strings.TrimPrefix(a, "+"))
		behind, err2 := strconv.Atoi(strings.TrimPrefix(b, "-"))
		if err1 == nil && err2 == nil {
			hdr.ahead, hdr.behind, hdr.hasAB = ahead, behind, true
		}
	}
}

func changeFromXY(c byte) Change {
	switch c {
	case 'M', 'T':
		return ChangeModified
	case 'A', 'C':
		return ChangeAdded
	case 'D':
		return ChangeDeleted
	case 'R':
		return ChangeRenamed
	case 'U':
		return ChangeUnmerged
	default:
		return ChangeNone
	}
}

// parseNumstatZ parses `git diff --numstat -z`. Renames are reported as
// "added\tremoved\t" followed by the source and destination paths as separate
// NUL-terminated fields. Binary files report "-" counts and yield unknown
// stats.
func parseNumstatZ(out string) (map[string]DiffStats, error) {
	stats := make(map[string]DiffStats)
	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		rec := fields[i]
		if rec == "" {
			continue
		}
		parts := strings.SplitN(rec, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed numstat record %q", rec)
		}
		path := parts[2]
		if path == "" {
			if i+2 >= len(fields) || fields[i+2] == "" {
				return nil, fmt.Errorf("truncated rename record %q", rec)
			}
			path = fields[i+2]
			i += 2
		}
		if parts[0] == "-" || parts[1] == "-" {
			stats[path] = DiffStats{}
			continue
		}
		added, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed numstat record %q: %w", rec, err)
		}
		removed, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("malformed numstat record %q: %w", rec, err)
		}
		stats[path] = DiffStats{Added: added, Removed: removed, Known: true}
	}
	return stats, nil
}

func (g *gitCLI) Tracking(ctx context.Context) (Tracking, error) {
	const op = "tracking"
	out, err := g.run(ctx, op, runOpts{noLocks: true},
		"status", "--porcelain=v2", "-z", "--branch", "--untracked-files=no")
	if err != nil {
		return Tracking{}, err
	}
	_, hdr, err := parseStatusV2(out)
	if err != nil {
		return Tracking{}, errorf(KindCommandFailed, op, "parse git status: %v", err)
	}
	if hdr.head == "(detached)" {
		return Tracking{Branch: "HEAD", Detached: true}, nil
	}
	t := Tracking{Branch: hdr.head}
	if hdr.oid == "(initial)" {
		return t, nil
	}
	if hdr.upstream != "" && hdr.hasAB {
		t.Upstream = &Upstream{Name: hdr.upstream, Ahead: hdr.ahead, Behind: hdr.behind}
		return t, nil
	}
	// No upstream configured; compare against origin/<branch> if it exists.
	fallback := DefaultRemote + "/" + hdr.head
	ref := "refs/remotes/" + fallback
	if _, err := g.run(ctx, op, runOpts{}, "rev-parse", "-q", "--verify", ref); err != nil {
		return t, nil
	}
	counts, err := g.run(ctx, op, runOpts{}, "rev-list", "--left-right", "--count", "HEAD..."+ref)
	if err != nil {
		return Tracking{}, err
	}
	ahead, behind, err := parseLeftRight(counts)
	if err != nil {
		return Tracking{}, errorf(KindCommandFailed, op, "parse rev-list: %v", err)
	}
	t.Upstream = &Upstream{Name: fallback, Ahead: ahead, Behind: behind}
	return t, nil
}

func parseLeftRight(out string) (left, right int, err error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected output %q", strings.TrimSpace(out))
	}
	if left, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, err
	}
	if right, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, err
	}
	return left, right, nil
}
