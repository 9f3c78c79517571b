package git

import (
	"strconv"
	"strings"
)

const diffHeader = "diff --git "

// FileSection marks the line (1-based) where the diff of Path starts.
type FileSection struct {
	Path string
	Line int
}

// indexSections finds the file headers of diffText; offset is the number of
// lines printed before it.
func indexSections(diffText string, offset int) []FileSection {
	var sections []FileSection
	for i, line := range strings.Split(diffText, "\n") {
		if path := DiffPath(line); path != "" {
			sections = append(sections, FileSection{Path: path, Line: offset + i + 1})
		}
	}
	return sections
}

// DiffPath returns the post-image path named by a "diff --git" header line,
// or "" for any other line. Quoted paths are unescaped.
func DiffPath(line string) string {
	rest, ok := strings.CutPrefix(line, diffHeader)
	if !ok {
		return ""
	}
	var fields []string
	for rest = strings.TrimSpace(rest); rest != "" && len(fields) < 2; rest = strings.TrimLeft(rest, " \t") {
		var field string
		field, rest = nextField(rest)
		fields = append(fields, field)
	}
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimPrefix(fields[1], "b/")
}

// nextField splits one path off s. git quotes paths with C-style escapes,
// which strconv.Unquote understands.
func nextField(s string) (string, string) {
	if s[0] != '"' {
		if i := strings.IndexAny(s, " \t"); i >= 0 {
			return s[:i], s[i:]
		}
		return s, ""
	}
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			if v, err := strconv.Unquote(s[:i+1]); err == nil {
				return v, s[i+1:]
			}
			return s[1:i], s[i+1:]
		}
	}
	return s[1:], ""
}
