package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// Larger files are reported without line stats.
const maxStatBytes = 4 << 20

func (n *native) Status(ctx context.Context) ([]FileEntry, error) {
	const op = "status"
	if err := canceled(op, ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	wt, err := n.worktree(op)
	if err != nil {
		return nil, err
	}
	st, err := wt.Status()
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	tree, err := n.headTree()
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	idx, err := n.repo.Storer.Index()
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}

	paths := make([]string, 0, len(st))
	for p := range st {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	src := contentSource{repo: n.repo, tree: tree, idx: idx, fs: wt.Filesystem}
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		if err := canceled(op, ctx); err != nil {
			return nil, err
		}
		fs := st[p]
		entry := FileEntry{
			Path:     p,
			Index:    changeFromCode(fs.Staging, true),
			Worktree: changeFromCode(fs.Worktree, false),
		}
		if entry.Index == ChangeNone && entry.Worktree == ChangeNone {
			continue
		}
		if fs.Staging == gitlib.Renamed {
			entry.OrigPath = fs.Extra
		}
		if entry.HasStaged() {
			from := p
			if entry.OrigPath != "" {
				from = entry.OrigPath
			}
			entry.IndexStats = src.stats(src.head(from), src.index(p))
		}
		if entry.Worktree != ChangeNone && entry.Worktree != ChangeUnmerged {
			entry.WorktreeStats = src.stats(src.index(p), src.worktree(p))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func changeFromCode(code gitlib.StatusCode, staging bool) Change {
	switch code {
	case gitlib.Added, gitlib.Copied:
		return ChangeAdded
	case gitlib.Modified:
		return ChangeModified
	case gitlib.Deleted:
		return ChangeDeleted
	case gitlib.Renamed:
		return ChangeRenamed
	case gitlib.UpdatedButUnmerged:
		return ChangeUnmerged
	case gitlib.Untracked:
		if staging {
			return ChangeNone
		}
		return ChangeUntracked
	default:
		return ChangeNone
	}
}

// blob is file content at one of HEAD, the index or the work tree. A missing
// blob is treated as an empty file.
type blob struct {
	data    []byte
	missing bool
	err     error
}

type contentSource struct {
	repo *gitlib.Repository
	tree *object.Tree
	idx  *index.Index
	fs   billy.Filesystem
}

func (s contentSource) head(path string) blob {
	if s.tree == nil {
		return blob{missing: true}
	}
	f, err := s.tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return blob{missing: true}
		}
		return blob{err: err}
	}
	if f.Size > maxStatBytes {
		return blob{err: errTooLarge}
	}
	r, err := f.Reader()
	if err != nil {
		return blob{err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return blob{data: data, err: err}
}

func (s contentSource) index(path string) blob {
	if s.idx == nil {
		return blob{missing: true}
	}
	e, err := s.idx.Entry(path)
	if err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			return blob{missing: true}
		}
		return blob{err: err}
	}
	if e.Size > maxStatBytes {
		return blob{err: errTooLarge}
	}
	b, err := s.repo.BlobObject(e.Hash)
	if err != nil {
		return blob{err: err}
	}
	r, err := b.Reader()
	if err != nil {
		return blob{err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return blob{data: data, err: err}
}

func (s contentSource) worktree(path string) blob {
	info, err := s.fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return blob{missing: true}
		}
		return blob{err: err}
	}
	if info.Size() > maxStatBytes {
		return blob{err: errTooLarge}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := s.fs.Readlink(path)
		return blob{data: []byte(target), err: err}
	}
	data, err := util.ReadFile(s.fs, path)
	return blob{data: data, err: err}
}

var errTooLarge = errors.New("file too large for line stats")

func (s contentSource) stats(from, to blob) DiffStats {
	if from.err != nil || to.err != nil || isBinary(from.data) || isBinary(to.data) {
		return DiffStats{}
	}
	return lineStats(from, to)
}

func lineStats(from, to blob) DiffStats {
	a := splitLines(from)
	b := splitLines(to)
	stats := DiffStats{Known: true}
	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			stats.Removed += op.I2 - op.I1
			stats.Added += op.J2 - op.J1
		case 'd':
			stats.Removed += op.I2 - op.I1
		case 'i':
			stats.Added += op.J2 - op.J1
		}
	}
	return stats
}

func splitLines(b blob) []string {
	if b.missing || len(b.data) == 0 {
		return nil
	}
	text := string(b.data)
	lines := strings.SplitAfter(text, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}

// isBinary uses the same heuristic as git: a NUL byte in the first 8000 bytes.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func (n *native) FileDiff(ctx context.Context, path string, staged bool) (string, error) {
	const op = "file diff"
	if err := canceled(op, ctx); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	wt, err := n.worktree(op)
	if err != nil {
		return "", err
	}
	tree, err := n.headTree()
	if err != nil {
		return "", classifyNative(op, err, KindCommandFailed)
	}
	idx, err := n.repo.Storer.Index()
	if err != nil {
		return "", classifyNative(op, err, KindCommandFailed)
	}
	src := contentSource{repo: n.repo, tree: tree, idx: idx, fs: wt.Filesystem}

	var from, to blob
	if staged {
		from, to = src.head(path), src.index(path)
	} else {
		from = src.index(path)
		if from.missing {
			from = src.head(path)
		}
		to = src.worktree(path)
	}
	if from.err != nil {
		return "", newError(KindCommandFailed, op, from.err)
	}
	if to.err != nil {
		return "", newError(KindCommandFailed, op, to.err)
	}
	return unifiedDiff(path, from, to)
}

func unifiedDiff(path string, from, to blob) (string, error) {
	var out strings.Builder
	fmt.Fprintf(&out, "diff --git a/%s b/%s\n", path, path)
	if isBinary(from.data) || isBinary(to.data) {
		fmt.Fprintf(&out, "Binary files differ\n")
		return out.String(), nil
	}
	fromName, toName := "a/"+path, "b/"+path
	if from.missing {
		fromName = "/dev/null"
	}
	if to.missing {
		toName = "/dev/null"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(from),
		B:        splitLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
	if err != nil {
		return "", newError(KindCommandFailed, "file diff", err)
	}
	out.WriteString(text)
	return out.String(), nil
}
