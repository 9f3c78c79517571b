package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

type IntentKind uint8

const (
	IntentStage IntentKind = iota
	IntentUnstage
	IntentCommit
	IntentAmend
	IntentPush
	IntentPull
	IntentCreateTag
	IntentDeleteTag
	IntentPushTags
	IntentAddRemote
)

func (k IntentKind) String() string {
	switch k {
	case IntentStage:
		return "stage"
	case IntentUnstage:
		return "unstage"
	case IntentCommit:
		return "commit"
	case IntentAmend:
		return "amend"
	case IntentPush:
		return "push"
	case IntentPull:
		return "pull"
	case IntentCreateTag:
		return "create tag"
	case IntentDeleteTag:
		return "delete tag"
	case IntentPushTags:
		return "push tags"
	case IntentAddRemote:
		return "add remote"
	default:
		return fmt.Sprintf("intent(%d)", uint8(k))
	}
}

// Intent is a user requested mutation. Build one with the constructors
// below; only the fields relevant to Kind are set.
type Intent struct {
	Kind    IntentKind
	Path    string
	Message string
	Name    string
	Target  string
	URL     string
	// PushAfter makes an add remote intent push the current branch once the
	// remote exists.
	PushAfter bool
}

func Stage(path string) Intent   { return Intent{Kind: IntentStage, Path: path} }
func Unstage(path string) Intent { return Intent{Kind: IntentUnstage, Path: path} }
func Commit(msg string) Intent   { return Intent{Kind: IntentCommit, Message: msg} }
func Amend(msg string) Intent    { return Intent{Kind: IntentAmend, Message: msg} }
func Push() Intent               { return Intent{Kind: IntentPush} }
func Pull() Intent               { return Intent{Kind: IntentPull} }
func PushTags() Intent           { return Intent{Kind: IntentPushTags} }

// CreateTag tags target, or HEAD when target is empty.
func CreateTag(name, target string) Intent {
	return Intent{Kind: IntentCreateTag, Name: name, Target: target}
}

func DeleteTag(name string) Intent { return Intent{Kind: IntentDeleteTag, Name: name} }

// AddRemote registers url under name (backend.DefaultRemote when empty).
func AddRemote(name, url string) Intent {
	return Intent{Kind: IntentAddRemote, Name: name, URL: url}
}

// AddRemoteAndPush adds the default remote and pushes the current branch to
// it, setting the upstream.
func AddRemoteAndPush(url string) Intent {
	return Intent{Kind: IntentAddRemote, URL: url, PushAfter: true}
}

func (in Intent) String() string {
	switch in.Kind {
	case IntentStage, IntentUnstage:
		return fmt.Sprintf("%s %s", in.Kind, in.Path)
	case IntentCreateTag, IntentDeleteTag:
		return fmt.Sprintf("%s %s", in.Kind, in.Name)
	case IntentAddRemote:
		if in.PushAfter {
			return fmt.Sprintf("add remote %s and push", in.URL)
		}
		return fmt.Sprintf("add remote %s", in.URL)
	default:
		return in.Kind.String()
	}
}

// key groups intents that must be serialized against each other.
func (in Intent) key() string {
	switch in.Kind {
	case IntentStage, IntentUnstage:
		return "path:" + in.Path
	case IntentCommit, IntentAmend:
		return "commit"
	case IntentCreateTag, IntentDeleteTag:
		return "tag:" + in.Name
	default:
		return "remote"
	}
}

func (in Intent) touchesIndex() bool {
	switch in.Kind {
	case IntentStage, IntentUnstage, IntentCommit, IntentAmend:
		return true
	}
	return false
}

// conflicts reports whether in must wait for held. Commits also wait for
// path intents, and path intents for commits, since both rewrite the index.
func conflicts(in, held Intent) bool {
	if in.key() == held.key() {
		return true
	}
	isCommit := func(i Intent) bool { return i.key() == "commit" }
	if in.touchesIndex() && held.touchesIndex() && (isCommit(in) || isCommit(held)) {
		return true
	}
	// Tag pushes must see the tags that exist locally.
	if in.Kind == IntentPushTags && (held.Kind == IntentCreateTag || held.Kind == IntentDeleteTag) {
		return true
	}
	return false
}

// validate checks the intent against the displayed projection.
func (in Intent) validate(s *Snapshot) error {
	switch in.Kind {
	case IntentStage:
		if in.Path == "" {
			return invalid(in, "empty path")
		}
		f, ok := s.File(in.Path)
		if !ok || !f.HasUnstaged() {
			return invalid(in, "%s has no unstaged changes", in.Path)
		}
	case IntentUnstage:
		if in.Path == "" {
			return invalid(in, "empty path")
		}
		f, ok := s.File(in.Path)
		if !ok || !f.HasStaged() {
			return invalid(in, "%s has no staged changes", in.Path)
		}
	case IntentCommit:
		if strings.TrimSpace(in.Message) == "" {
			return invalid(in, "empty commit message")
		}
		if len(s.Staged()) == 0 {
			return invalid(in, "nothing staged")
		}
	case IntentAmend:
		if strings.TrimSpace(in.Message) == "" {
			return invalid(in, "empty commit message")
		}
		if len(s.Commits) == 0 {
			return invalid(in, "no commit to amend")
		}
	case IntentPush:
		if s.Tracking.Detached {
			return invalid(in, "HEAD is detached")
		}
		if len(s.Commits) == 0 {
			return invalid(in, "no commits to push")
		}
	case IntentPull:
		if s.Tracking.Detached {
			return invalid(in, "HEAD is detached")
		}
		if !s.Tracking.HasUpstream() {
			return invalid(in, "%s has no upstream", s.Tracking.Branch)
		}
	case IntentCreateTag:
		if err := checkTagName(in.Name); err != nil {
			return invalid(in, "%v", err)
		}
		if s.HasTag(in.Name) {
			return invalid(in, "tag %s already exists", in.Name)
		}
		if in.Target == "" && len(s.Commits) == 0 {
			return invalid(in, "no commit to tag")
		}
	case IntentDeleteTag:
		if !s.HasTag(in.Name) {
			return invalid(in, "tag %s does not exist", in.Name)
		}
	case IntentPushTags:
		if len(s.Tags) == 0 {
			return invalid(in, "no tags to push")
		}
	case IntentAddRemote:
		if strings.TrimSpace(in.URL) == "" {
			return invalid(in, "empty remote URL")
		}
		if in.PushAfter && s.Tracking.Detached {
			return invalid(in, "HEAD is detached")
		}
	default:
		return invalid(in, "unknown intent kind")
	}
	return nil
}

// checkTagName applies the subset of git check-ref-format rules that can be
// typed into a single-line prompt.
func checkTagName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty tag name")
	case name == "@":
		return fmt.Errorf("%q is not a valid tag name", name)
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "/"), strings.HasPrefix(name, "."):
		return fmt.Errorf("tag name cannot start with %q", name[:1])
	case strings.HasSuffix(name, "/"), strings.HasSuffix(name, "."), strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("invalid tag name ending in %q", name)
	case strings.Contains(name, ".."), strings.Contains(name, "@{"), strings.Contains(name, "//"), strings.Contains(name, "/."):
		return fmt.Errorf("invalid tag name %q", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\", r) {
			return fmt.Errorf("tag name contains invalid character %q", r)
		}
	}
	return nil
}

// result is what a finished backend call reports back to the loop.
type result struct {
	commit *backend.Commit
	err    error
}

func (in Intent) run(ctx context.Context, b backend.Backend) result {
	switch in.Kind {
	case IntentStage:
		return result{err: b.Stage(ctx, in.Path)}
	case IntentUnstage:
		return result{err: b.Unstage(ctx, in.Path)}
	case IntentCommit, IntentAmend:
		commit := b.Commit
		if in.Kind == IntentAmend {
			commit = b.Amend
		}
		c, err := commit(ctx, in.Message)
		if err != nil {
			return result{err: err}
		}
		return result{commit: &c}
	case IntentPush:
		return result{err: b.Push(ctx)}
	case IntentPull:
		return result{err: b.Pull(ctx)}
	case IntentCreateTag:
		return result{err: b.CreateTag(ctx, in.Name, in.Target)}
	case IntentDeleteTag:
		return result{err: b.DeleteTag(ctx, in.Name)}
	case IntentPushTags:
		return result{err: b.PushTags(ctx)}
	case IntentAddRemote:
		if err := b.AddRemote(ctx, in.Name, in.URL); err != nil {
			return result{err: err}
		}
		if in.PushAfter {
			return result{err: b.Push(ctx)}
		}
		return result{}
	}
	return result{err: fmt.Errorf("unknown intent kind %d", in.Kind)}
}
