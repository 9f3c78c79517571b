package backend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NUL-delimited records; commit messages cannot contain NUL.
const logFormat = "%H%n%P%n%an%n%ae%n%aI%n%cn%n%ce%n%cI%n%B%x00"

func (g *gitCLI) Log(ctx context.Context, window int) ([]Commit, error) {
	const op = "log"
	if window <= 0 {
		return nil, nil
	}
	head, headName, ok, err := g.headState(ctx)
	if err != nil || !ok {
		return nil, err
	}
	out, err := g.run(ctx, op, runOpts{},
		"log", "--no-color", "--no-decorate", "--date-order", "--no-patch",
		"-n", strconv.Itoa(window),
		"--pretty=tformat:"+logFormat,
		head,
	)
	if err != nil {
		return nil, err
	}
	commits, err := parseGitLog(out)
	if err != nil {
		return nil, errorf(KindCommandFailed, op, "parse git log: %v", err)
	}
	refs, err := g.listRefs(ctx)
	if err != nil {
		return nil, err
	}
	labels := labelRefs(refs, head, headName)
	for i := range commits {
		commits[i].Refs = labels[commits[i].Hash]
	}
	MarkBoundaries(commits)
	return commits, nil
}

// headState returns ok=false on an unborn branch.
func (g *gitCLI) headState(ctx context.Context) (hash, headName string, ok bool, err error) {
	out, err := g.run(ctx, "resolve HEAD", runOpts{allowExit1: true}, "rev-parse", "-q", "--verify", "HEAD")
	if err != nil {
		return "", "", false, err
	}
	hash = strings.TrimSpace(out)
	if hash == "" {
		return "", "", false, nil
	}
	ref, err := g.run(ctx, "resolve HEAD", runOpts{allowExit1: true}, "symbolic-ref", "-q", "--short", "HEAD")
	if err != nil {
		return "", "", false, err
	}
	headName = strings.TrimSpace(ref)
	if headName == "" {
		headName = "HEAD"
	}
	return hash, headName, true, nil
}

func parseGitLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, rec := range strings.Split(out, "\x00") {
		// git log prints a newline between records even when the format ends
		// with NUL.
		rec = strings.TrimLeft(rec, "\r\n")
		if rec == "" {
			continue
		}
		c, err := parseGitLogRecord(rec)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func parseGitLogRecord(rec string) (Commit, error) {
	parts := strings.SplitN(rec, "\n", 9)
	if len(parts) < 8 {
		return Commit{}, fmt.Errorf("unexpected git log record: got %d lines", len(parts))
	}
	hash := strings.TrimSpace(parts[0])
	if hash == "" {
		return Commit{}, fmt.Errorf("missing commit hash")
	}
	authorWhen, _ := time.Parse(time.RFC3339, parts[4])
	committerWhen, _ := time.Parse(time.RFC3339, parts[7])
	message := ""
	if len(parts) > 8 {
		message = parts[8]
	}
	return Commit{
		Hash:      hash,
		Parents:   strings.Fields(parts[1]),
		Author:    Signature{Name: parts[2], Email: parts[3], When: authorWhen},
		Committer: Signature{Name: parts[5], Email: parts[6], When: committerWhen},
		Message:   message,
	}, nil
}

func (g *gitCLI) listRefs(ctx context.Context) ([]Ref, error) {
	// show-ref exits 1 when the repository has no refs at all.
	out, err := g.run(ctx, "list refs", runOpts{allowExit1: true}, "show-ref", "--dereference")
	if err != nil {
		return nil, err
	}
	refs, err := parseRefsFromShowRef(out)
	if err != nil {
		return nil, errorf(KindCommandFailed, "list refs", "%v", err)
	}
	return refs, nil
}

// labelRefs groups refs by hash, HEAD first and the rest ordered by kind and
// name. Symbolic remote HEADs are skipped.
func labelRefs(refs []Ref, head, headName string) map[string][]Ref {
	labels := make(map[string][]Ref)
	for _, r := range refs {
		if r.Kind == RefKindRemoteBranch && strings.HasSuffix(r.Name, "/HEAD") {
			continue
		}
		labels[r.Hash] = append(labels[r.Hash], r)
	}
	for h := range labels {
		sort.Slice(labels[h], func(i, j int) bool {
			a, b := labels[h][i], labels[h][j]
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
			return a.Name < b.Name
		})
	}
	if head != "" {
		labels[head] = append([]Ref{{Hash: head, Kind: RefKindHead, Name: headName}}, labels[head]...)
	}
	return labels
}

func parseRefsFromShowRef(out string) ([]Ref, error) {
	type refEntry struct {
		hash string
		ref  string
	}

	peeledByTagRef := map[string]string{}
	var entries []refEntry

	for _, rawLine := range strings.Split(out, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected show-ref output line: %q", rawLine)
		}
		hash, refName := parts[0], parts[1]
		if base, ok := strings.CutSuffix(refName, "^{}"); ok {
			if base != "" {
				peeledByTagRef[base] = hash
			}
			continue
		}
		entries = append(entries, refEntry{hash: hash, ref: refName})
	}

	var refs []Ref
	for _, entry := range entries {
		var kind RefKind
		var short string
		switch {
		case strings.HasPrefix(entry.ref, "refs/tags/"):
			kind, short = RefKindTag, strings.TrimPrefix(entry.ref, "refs/tags/")
		case strings.HasPrefix(entry.ref, "refs/heads/"):
			kind, short = RefKindBranch, strings.TrimPrefix(entry.ref, "refs/heads/")
		case strings.HasPrefix(entry.ref, "refs/remotes/"):
			kind, short = RefKindRemoteBranch, strings.TrimPrefix(entry.ref, "refs/remotes/")
		default:
			continue
		}
		if short == "" {
			continue
		}
		hash := entry.hash
		if peeled, ok := peeledByTagRef[entry.ref]; ok && kind == RefKindTag {
			hash = peeled
		}
		refs = append(refs, Ref{Hash: hash, Kind: kind, Name: short})
	}
	return refs, nil
}

func (g *gitCLI) Tags(ctx context.Context) ([]TagRef, error) {
	const op = "list tags"
	out, err := g.run(ctx, op, runOpts{},
		"for-each-ref", "--sort=refname",
		"--format=%(refname:short)%00%(objectname)%00%(objecttype)%00%(*objectname)",
		"refs/tags",
	)
	if err != nil {
		return nil, err
	}
	tags, err := parseTagList(out)
	if err != nil {
		return nil, errorf(KindCommandFailed, op, "%v", err)
	}
	return tags, nil
}

func parseTagList(out string) ([]TagRef, error) {
	var tags []TagRef
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\x00")
		if len(parts) != 4 {
			return nil, fmt.Errorf("unexpected for-each-ref line: %q", line)
		}
		t := TagRef{Name: parts[0], Target: parts[1]}
		if parts[2] == "tag" {
			t.Annotated = true
			if parts[3] != "" {
				t.Target = parts[3]
			}
		}
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (g *gitCLI) CommitDiff(ctx context.Context, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "", errorf(KindCommandFailed, "commit diff", "commit not specified")
	}
	return g.run(ctx, "commit diff", runOpts{},
		"show", "--no-color", "--no-ext-diff", "--pretty=format:", "--patch", hash, "--")
}

func (g *gitCLI) FileDiff(ctx context.Context, path string, staged bool) (string, error) {
	const op = "file diff"
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if staged {
		args = append(args, "--cached")
	}
	out, err := g.run(ctx, op, runOpts{noLocks: true}, append(args, "--", path)...)
	if err != nil || out != "" || staged {
		return out, err
	}
	// Untracked files have no index entry; diff them against nothing.
	if _, err := g.run(ctx, op, runOpts{}, "ls-files", "--error-unmatch", "--", path); err == nil {
		return "", nil
	}
	return g.run(ctx, op, runOpts{allowExit1: true},
		"diff", "--no-color", "--no-ext-diff", "--no-index", "--", "/dev/null", path)
}
