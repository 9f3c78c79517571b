// Package highlight colors diff text for the terminal.
package highlight

import (
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	darkmode "github.com/thiagokokada/dark-mode-go"

	"github.com/thiagokokada/siori-go/internal/git"
)

type Theme int

const (
	Dark Theme = iota
	Light
)

func (t Theme) String() string {
	if t == Light {
		return "light"
	}
	return "dark"
}

var detectDarkMode = darkmode.IsDarkMode

// Resolve maps a configured theme name to a concrete theme. "auto" (and
// anything unknown) asks the desktop, falling back to Dark when it cannot
// tell, which matches most terminals.
func Resolve(pref string) Theme {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "dark":
		return Dark
	case "light":
		return Light
	}
	if detectDarkMode != nil {
		dark, err := detectDarkMode()
		if err == nil {
			if dark {
				return Dark
			}
			return Light
		}
		slog.Debug("detect dark-mode", slog.Any("error", err))
	}
	return Dark
}

// Diffs larger than this are shown plain.
const maxHighlightBytes = 512 << 10

// Highlighter renders unified diffs with ANSI colors. A nil Highlighter
// returns its input unchanged.
type Highlighter struct {
	style     *chroma.Style
	formatter chroma.Formatter
}

func New(theme Theme) *Highlighter {
	return &Highlighter{
		style:     styleForTheme(theme),
		formatter: formatters.TTY256,
	}
}

func (h *Highlighter) Diff(text string) string {
	if h == nil || text == "" || len(text) > maxHighlightBytes {
		return text
	}
	var b strings.Builder
	if err := h.formatter.Format(&b, h.style, chroma.Literator(diffTokens(text)...)); err != nil {
		slog.Debug("highlight diff", slog.Any("error", err))
		return text
	}
	return b.String()
}

func diffTokens(text string) []chroma.Token {
	var (
		out   []chroma.Token
		lexer chroma.Lexer
	)
	for _, raw := range strings.SplitAfter(text, "\n") {
		if raw == "" {
			continue
		}
		line := strings.TrimSuffix(raw, "\n")
		switch {
		case strings.HasPrefix(line, "diff --git "):
			lexer = lexerForPath(git.DiffPath(line))
			out = append(out, chroma.Token{Type: chroma.GenericHeading, Value: line})
		case strings.HasPrefix(line, "@@"):
			out = append(out, chroma.Token{Type: chroma.GenericSubheading, Value: line})
		case isFileHeader(line):
			out = append(out, chroma.Token{Type: chroma.GenericHeading, Value: line})
		default:
			code, ok := diffLineCode(line)
			if !ok {
				out = append(out, chroma.Token{Type: chroma.Text, Value: line})
				break
			}
			out = append(out, chroma.Token{Type: prefixType(line[0]), Value: line[:1]})
			out = append(out, codeTokens(lexer, code)...)
		}
		if len(raw) != len(line) {
			out = append(out, chroma.Token{Type: chroma.Text, Value: "\n"})
		}
	}
	return out
}

func codeTokens(lexer chroma.Lexer, code string) []chroma.Token {
	if code == "" {
		return nil
	}
	plain := []chroma.Token{{Type: chroma.Text, Value: code}}
	if lexer == nil {
		return plain
	}
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return plain
	}
	var out []chroma.Token
	for _, tok := range it.Tokens() {
		// Lexers terminate their input with a newline of their own.
		tok.Value = strings.ReplaceAll(tok.Value, "\n", "")
		if tok.Value != "" {
			out = append(out, tok)
		}
	}
	return out
}

func prefixType(c byte) chroma.TokenType {
	switch c {
	case '+':
		return chroma.GenericInserted
	case '-':
		return chroma.GenericDeleted
	}
	return chroma.Text
}

func isFileHeader(line string) bool {
	for _, prefix := range []string{"--- ", "+++ ", "index ", "new file mode", "deleted file mode", "old mode", "new mode", "similarity index", "rename from", "rename to", "Binary files"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// diffLineCode returns the code part of a context, added or removed line.
func diffLineCode(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	switch line[0] {
	case '+', '-', ' ':
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			return "", false
		}
		return line[1:], true
	default:
		return "", false
	}
}

func styleForTheme(t Theme) *chroma.Style {
	name := "github-dark"
	if t == Light {
		name = "github"
	}
	if st := styles.Get(name); st != nil {
		return st
	}
	return styles.Fallback
}

func lexerForPath(path string) chroma.Lexer {
	if path == "" {
		return nil
	}
	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}
