// Package repos finds git repositories below a directory.
package repos

import (
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// MaxDepth is how many directory levels below the base Detect looks into.
const MaxDepth = 2

// Detect returns base and the directories up to MaxDepth levels below it
// that contain a .git entry, sorted by path.
func Detect(base string) []string {
	abs, err := filepath.Abs(base)
	if err != nil {
		abs = base
	}
	return detect(osfs.New(abs), abs)
}

func detect(fsys billy.Filesystem, base string) []string {
	var found []string
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if isRepo(fsys, dir) {
			found = append(found, filepath.Join(base, filepath.FromSlash(dir)))
		}
		if depth == MaxDepth {
			return
		}
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			slog.Debug("scan for repositories", slog.String("dir", dir), slog.Any("error", err))
			return
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == ".git" {
				continue
			}
			walk(fsys.Join(dir, e.Name()), depth+1)
		}
	}
	walk("/", 0)
	sort.Strings(found)
	return found
}

func isRepo(fsys billy.Filesystem, dir string) bool {
	_, err := fsys.Stat(fsys.Join(dir, ".git"))
	return err == nil
}
