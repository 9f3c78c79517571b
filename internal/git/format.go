package git

import (
	"fmt"
	"strings"
	"time"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

const summaryWidth = 80

func FormatCommitHeader(c backend.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", c.Hash)
	if len(c.Parents) > 1 {
		short := make([]string, 0, len(c.Parents))
		for _, p := range c.Parents {
			short = append(short, shortHash(p))
		}
		fmt.Fprintf(&b, "Merge: %s\n", strings.Join(short, " "))
	}
	appendSignatureLine(&b, "Author", c.Author)
	committer := c.Committer
	if committer.Name == "" && committer.Email == "" && committer.When.IsZero() {
		committer = c.Author
	}
	appendSignatureLine(&b, "Committer", committer)
	b.WriteString("\n")
	message := strings.TrimRight(c.Message, "\n")
	if message == "" {
		b.WriteString("    (no commit message)\n")
		return b.String()
	}
	for line := range strings.SplitSeq(message, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

func appendSignatureLine(b *strings.Builder, label string, sig backend.Signature) {
	fmt.Fprintf(b, "%s: %s <%s>", label, sig.Name, sig.Email)
	if !sig.When.IsZero() {
		fmt.Fprintf(b, "  %s", sig.When.Format("2006-01-02 15:04:05 -0700"))
	}
	b.WriteByte('\n')
}

// Summary is the one line form used by plain listings.
func Summary(c backend.Commit) string {
	subject := c.Subject()
	if len(subject) > summaryWidth {
		subject = subject[:summaryWidth-3] + "..."
	}
	timestamp := c.Committer.When.Format("2006-01-02 15:04")
	return fmt.Sprintf("%s  %s  %s", c.ShortHash(), timestamp, subject)
}

// RelativeTime renders the age of t relative to now.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d days ago", int(d/(24*time.Hour)))
	}
}

// CommitDiff prefixes diffText with the commit header and indexes the file
// sections of the result.
func CommitDiff(c backend.Commit, diffText string) (string, []FileSection) {
	header := FormatCommitHeader(c)
	if strings.TrimSpace(diffText) == "" {
		return header + "\nNo file level changes.\n", nil
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(diffText)
	if !strings.HasSuffix(diffText, "\n") {
		b.WriteByte('\n')
	}
	return b.String(), indexSections(diffText, strings.Count(header, "\n"))
}

// LocalDiff titles a work tree or index diff.
func LocalDiff(path string, staged bool, diffText string) (string, []FileSection) {
	header := "Local uncommitted changes, not checked in to index"
	if staged {
		header = "Local changes checked into index but not committed"
	}
	header += ": " + path + "\n\n"
	if strings.TrimSpace(diffText) == "" {
		return header + "No changes.\n", nil
	}
	return header + diffText, indexSections(diffText, strings.Count(header, "\n"))
}
