package engine

import (
	"errors"
	"testing"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

func TestConflicts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, held Intent
		want     bool
	}{
		{Stage("a"), Stage("a"), true},
		{Unstage("a"), Stage("a"), true},
		{Stage("a"), Stage("b"), false},
		{Commit("m"), Stage("a"), true},
		{Stage("a"), Amend("m"), true},
		{Amend("m"), Commit("m"), true},
		{Push(), Pull(), true},
		{PushTags(), Push(), true},
		{AddRemoteAndPush("u"), Push(), true},
		{Push(), Stage("a"), false},
		{CreateTag("v1", ""), DeleteTag("v1"), true},
		{CreateTag("v1", ""), CreateTag("v2", ""), false},
		{PushTags(), CreateTag("v2", ""), true},
	}
	for _, tt := range tests {
		if got := conflicts(tt.in, tt.held); got != tt.want {
			t.Fatalf("conflicts(%s, %s) = %v, want %v", tt.in, tt.held, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	snap := &Snapshot{
		Files: []FileView{
			{FileEntry: backend.FileEntry{Path: "a", Worktree: backend.ChangeModified}},
			{FileEntry: backend.FileEntry{Path: "b", Index: backend.ChangeAdded}},
			{FileEntry: backend.FileEntry{Path: "c", Index: backend.ChangeModified, Worktree: backend.ChangeModified}},
		},
		Commits:  []backend.Commit{{Hash: "h1"}},
		Tags:     []backend.TagRef{{Name: "v1"}},
		Tracking: backend.Tracking{Branch: "main"},
	}
	detached := &Snapshot{Commits: snap.Commits, Tracking: backend.Tracking{Branch: "HEAD", Detached: true}}
	empty := &Snapshot{Tracking: backend.Tracking{Branch: "main"}}

	tests := []struct {
		name  string
		in    Intent
		snap  *Snapshot
		valid bool
	}{
		{"stage modified", Stage("a"), snap, true},
		{"stage partially staged", Stage("c"), snap, true},
		{"stage staged", Stage("b"), snap, false},
		{"stage unknown", Stage("z"), snap, false},
		{"unstage staged", Unstage("b"), snap, true},
		{"unstage unstaged", Unstage("a"), snap, false},
		{"commit", Commit("msg"), snap, true},
		{"commit blank", Commit("\n "), snap, false},
		{"commit nothing staged", Commit("msg"), empty, false},
		{"amend", Amend("msg"), snap, true},
		{"amend without history", Amend("msg"), empty, false},
		{"push", Push(), snap, true},
		{"push detached", Push(), detached, false},
		{"push unborn", Push(), empty, false},
		{"pull without upstream", Pull(), snap, false},
		{"create tag", CreateTag("v2", ""), snap, true},
		{"create existing tag", CreateTag("v1", ""), snap, false},
		{"create tag unborn", CreateTag("v2", ""), empty, false},
		{"delete tag", DeleteTag("v1"), snap, true},
		{"delete unknown tag", DeleteTag("v9"), snap, false},
		{"push tags", PushTags(), snap, true},
		{"push no tags", PushTags(), empty, false},
		{"add remote", AddRemoteAndPush("git@example.com:r.git"), snap, true},
		{"add remote blank", AddRemoteAndPush(" "), snap, false},
		{"add remote detached", AddRemoteAndPush("u"), detached, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.validate(tt.snap)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidIntent) {
				t.Fatalf("expected InvalidIntent, got %v", err)
			}
		})
	}

	withUpstream := *snap
	withUpstream.Tracking.Upstream = &backend.Upstream{Name: "origin/main"}
	if err := Pull().validate(&withUpstream); err != nil {
		t.Fatalf("expected pull with upstream to be valid, got %v", err)
	}
}

func TestCheckTagName(t *testing.T) {
	t.Parallel()
	valid := []string{"v1.0.0", "release/2024-01", "x"}
	invalid := []string{"", "@", "-v1", "/v1", ".v1", "v1/", "v1.", "v1.lock", "a..b", "a@{b", "a//b", "a/.b", "has space", "a~1", "a^", "a:b", "a?", "a*", "a[", "a\\b", "tab\tname"}
	for _, name := range valid {
		if err := checkTagName(name); err != nil {
			t.Fatalf("expected %q to be valid, got %v", name, err)
		}
	}
	for _, name := range invalid {
		if err := checkTagName(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestIntentString(t *testing.T) {
	t.Parallel()
	tests := map[string]Intent{
		"stage a.txt":           Stage("a.txt"),
		"unstage a.txt":         Unstage("a.txt"),
		"commit":                Commit("x"),
		"create tag v1":         CreateTag("v1", ""),
		"push tags":             PushTags(),
		"add remote u and push": AddRemoteAndPush("u"),
		"add remote u":          AddRemote("", "u"),
		"delete tag v1":         DeleteTag("v1"),
	}
	for want, in := range tests {
		if got := in.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	err := invalid(Stage("a"), "%s has no unstaged changes", "a")
	if got := err.Error(); got != "stage a: invalid intent: a has no unstaged changes" {
		t.Fatalf("unexpected message: %q", got)
	}
	busy := inFlight(Unstage("a"), Stage("a"))
	if got := busy.Error(); got != "unstage a: intent in flight: waiting for stage a" {
		t.Fatalf("unexpected message: %q", got)
	}
	cause := errors.New("boom")
	ue := &UnavailableError{Repo: "/r", Err: cause}
	if !errors.Is(ue, ErrRepositoryUnavailable) || !errors.Is(ue, cause) {
		t.Fatalf("expected unavailable error to match sentinel and cause")
	}
	if got := ue.Error(); got != "repository unavailable: /r: boom" {
		t.Fatalf("unexpected message: %q", got)
	}
	oe := &OperationError{Intent: Push(), Err: cause}
	if !errors.Is(oe, cause) || oe.Error() != "push failed: boom" {
		t.Fatalf("unexpected operation error: %v", oe)
	}
}
