package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryRepo(t *testing.T) (Backend, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	repo, err := gitlib.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.User.Name = "Test"
	cfg.User.Email = "test@example.com"
	require.NoError(t, repo.SetConfig(cfg))
	return NewNative(repo), fs
}

func writeFile(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
}

func findEntry(t *testing.T, entries []FileEntry, path string) FileEntry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no status entry for %s in %+v", path, entries)
	return FileEntry{}
}

func TestNativeStageUnstageWithoutHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "a.txt", "one\ntwo\n")

	entries, err := b.Status(ctx)
	require.NoError(t, err)
	e := findEntry(t, entries, "a.txt")
	assert.Equal(t, StatusUntracked, e.Status())
	assert.Equal(t, DiffStats{Added: 2, Known: true}, e.WorktreeStats)

	require.NoError(t, b.Stage(ctx, "a.txt"))
	entries, err = b.Status(ctx)
	require.NoError(t, err)
	e = findEntry(t, entries, "a.txt")
	assert.Equal(t, ChangeAdded, e.Index)
	assert.Equal(t, ChangeNone, e.Worktree)
	assert.Equal(t, DiffStats{Added: 2, Known: true}, e.IndexStats)

	require.NoError(t, b.Unstage(ctx, "a.txt"))
	entries, err = b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUntracked, findEntry(t, entries, "a.txt").Status())
}

func TestNativeCommitAndLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)

	commits, err := b.Log(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, commits)

	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	first, err := b.Commit(ctx, "first\n\nbody")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Subject())
	assert.Empty(t, first.Parents)

	writeFile(t, fs, "a.txt", "hello\nworld\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	second, err := b.Commit(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, []string{first.Hash}, second.Parents)

	commits, err = b.Log(ctx, 10)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, second.Hash, commits[0].Hash)
	assert.Equal(t, first.Hash, commits[1].Hash)
	require.NotEmpty(t, commits[0].Refs)
	assert.Equal(t, RefKindHead, commits[0].Refs[0].Kind)
	assert.False(t, commits[0].Boundary)

	commits, err = b.Log(ctx, 1)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.True(t, commits[0].Boundary, "parent outside the window")

	diff, err := b.CommitDiff(ctx, first.Hash)
	require.NoError(t, err)
	assert.Contains(t, diff, "+hello")
	diff, err = b.CommitDiff(ctx, second.Hash)
	require.NoError(t, err)
	assert.Contains(t, diff, "+world")
}

func TestNativeUnstageRestoresHeadVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	_, err := b.Commit(ctx, "init")
	require.NoError(t, err)

	writeFile(t, fs, "a.txt", "hello\nthere\n")
	entries, err := b.Status(ctx)
	require.NoError(t, err)
	e := findEntry(t, entries, "a.txt")
	assert.Equal(t, StatusModified, e.Status())
	assert.Equal(t, DiffStats{Added: 1, Known: true}, e.WorktreeStats)

	unstaged, err := b.FileDiff(ctx, "a.txt", false)
	require.NoError(t, err)
	assert.Contains(t, unstaged, "+there")

	require.NoError(t, b.Stage(ctx, "a.txt"))
	staged, err := b.FileDiff(ctx, "a.txt", true)
	require.NoError(t, err)
	assert.Contains(t, staged, "+there")

	require.NoError(t, b.Unstage(ctx, "a.txt"))
	entries, err = b.Status(ctx)
	require.NoError(t, err)
	e = findEntry(t, entries, "a.txt")
	assert.Equal(t, ChangeNone, e.Index)
	assert.Equal(t, ChangeModified, e.Worktree)
}

func TestNativeStageDeletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "gone.txt", "x\n")
	require.NoError(t, b.Stage(ctx, "gone.txt"))
	_, err := b.Commit(ctx, "init")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("gone.txt"))
	entries, err := b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, findEntry(t, entries, "gone.txt").Status())

	require.NoError(t, b.Stage(ctx, "gone.txt"))
	entries, err = b.Status(ctx)
	require.NoError(t, err)
	e := findEntry(t, entries, "gone.txt")
	assert.Equal(t, ChangeDeleted, e.Index)
	assert.Equal(t, ChangeNone, e.Worktree)
}

func TestNativeEmptyCommitIsDirtyWorktreeConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	_, err := b.Commit(ctx, "init")
	require.NoError(t, err)

	_, err = b.Commit(ctx, "again")
	require.Error(t, err)
	assert.Equal(t, KindDirtyWorktreeConflict, KindOf(err))
}

func TestNativeAmend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)

	_, err := b.Amend(ctx, "nothing yet")
	require.Error(t, err)

	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	orig, err := b.Commit(ctx, "typo")
	require.NoError(t, err)

	amended, err := b.Amend(ctx, "fixed")
	require.NoError(t, err)
	assert.NotEqual(t, orig.Hash, amended.Hash)
	assert.Equal(t, "fixed", amended.Subject())

	commits, err := b.Log(ctx, 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, amended.Hash, commits[0].Hash)
}

func TestNativeTags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	c, err := b.Commit(ctx, "init")
	require.NoError(t, err)

	require.NoError(t, b.CreateTag(ctx, "v1.0.0", ""))
	require.NoError(t, b.CreateTag(ctx, "alpha", c.Hash))
	err = b.CreateTag(ctx, "v1.0.0", "")
	require.Error(t, err)

	tags, err := b.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "alpha", tags[0].Name)
	assert.Equal(t, TagRef{Name: "v1.0.0", Target: c.Hash}, tags[1])

	commits, err := b.Log(ctx, 1)
	require.NoError(t, err)
	var names []string
	for _, r := range commits[0].Refs {
		if r.Kind == RefKindTag {
			names = append(names, r.Name)
		}
	}
	assert.Equal(t, []string{"alpha", "v1.0.0"}, names)

	require.NoError(t, b.DeleteTag(ctx, "alpha"))
	require.Error(t, b.DeleteTag(ctx, "alpha"))
	tags, err = b.Tags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestNativePushWithoutRemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, fs := newMemoryRepo(t)
	writeFile(t, fs, "a.txt", "hello\n")
	require.NoError(t, b.Stage(ctx, "a.txt"))
	_, err := b.Commit(ctx, "init")
	require.NoError(t, err)

	err = b.Push(ctx)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNetworkFailure))
	assert.True(t, errors.Is(err, ErrNoRemote))

	err = b.PushTags(ctx)
	assert.True(t, errors.Is(err, ErrNoRemote))

	tracking, err := b.Tracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", tracking.Branch)
	assert.False(t, tracking.HasUpstream())

	require.NoError(t, b.AddRemote(ctx, "", "https://example.invalid/repo.git"))
	require.Error(t, b.AddRemote(ctx, "origin", "https://example.invalid/other.git"))
}

func TestNativeCanceledContext(t *testing.T) {
	t.Parallel()
	b, _ := newMemoryRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Status(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOpenNativeNotARepository(t *testing.T) {
	t.Parallel()
	_, err := OpenNative(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, KindNotARepository, KindOf(err))

	_, err = OpenNative("/definitely/not/here")
	require.Error(t, err)
	assert.Equal(t, KindNotARepository, KindOf(err))
}

func TestOpenNativeFindsRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := gitlib.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	b, err := OpenNative(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Equal(t, dir, b.RepoPath())
}
