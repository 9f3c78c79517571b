package backend

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

func (n *native) Log(ctx context.Context, window int) ([]Commit, error) {
	const op = "log"
	if err := canceled(op, ctx); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	head, err := n.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	labels, err := n.refLabels(head)
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	iter, err := n.repo.Log(&gitlib.LogOptions{From: head.Hash(), Order: gitlib.LogOrderCommitterTime})
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	defer iter.Close()

	commits := make([]Commit, 0, min(window, 256))
	for len(commits) < window {
		if err := canceled(op, ctx); err != nil {
			return nil, err
		}
		c, err := iter.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, classifyNative(op, err, KindCommandFailed)
		}
		commits = append(commits, commitFromObject(c, labels[c.Hash.String()]))
	}
	MarkBoundaries(commits)
	return commits, nil
}

func commitFromObject(c *object.Commit, refs []Ref) Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return Commit{
		Hash:      c.Hash.String(),
		Parents:   parents,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
		Refs:      refs,
	}
}

// refLabels maps commit hashes to the refs pointing at them, HEAD first and
// the rest ordered by kind and name.
func (n *native) refLabels(head *plumbing.Reference) (map[string][]Ref, error) {
	labels := make(map[string][]Ref)
	refs, err := n.repo.References()
	if err != nil {
		return nil, err
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		target := ref.Hash()
		var kind RefKind
		switch {
		case name.IsBranch():
			kind = RefKindBranch
		case name.IsRemote():
			if strings.HasSuffix(name.String(), "/HEAD") {
				return nil
			}
			kind = RefKindRemoteBranch
		case name.IsTag():
			kind = RefKindTag
			if tag, err := n.repo.TagObject(target); err == nil {
				if c, err := tag.Commit(); err == nil {
					target = c.Hash
				} else {
					target = tag.Target
				}
			}
		default:
			return nil
		}
		h := target.String()
		labels[h] = append(labels[h], Ref{Hash: h, Kind: kind, Name: name.Short()})
		return nil
	})
	if err != nil {
		return nil, err
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
	if head != nil {
		h := head.Hash().String()
		name := "HEAD"
		if head.Name().IsBranch() {
			name = head.Name().Short()
		}
		labels[h] = append([]Ref{{Hash: h, Kind: RefKindHead, Name: name}}, labels[h]...)
	}
	return labels, nil
}

func (n *native) Tags(ctx context.Context) ([]TagRef, error) {
	const op = "list tags"
	if err := canceled(op, ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	iter, err := n.repo.Tags()
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	var tags []TagRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		t := TagRef{Name: ref.Name().Short(), Target: ref.Hash().String()}
		if obj, err := n.repo.TagObject(ref.Hash()); err == nil {
			t.Annotated = true
			if c, err := obj.Commit(); err == nil {
				t.Target = c.Hash.String()
			} else {
				t.Target = obj.Target.String()
			}
		}
		tags = append(tags, t)
		return nil
	})
	if err != nil {
		return nil, classifyNative(op, err, KindCommandFailed)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (n *native) Tracking(ctx context.Context) (Tracking, error) {
	const op = "tracking"
	if err := canceled(op, ctx); err != nil {
		return Tracking{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	head, err := n.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			branch, ok := n.currentBranch()
			return Tracking{Branch: branch, Detached: !ok}, nil
		}
		return Tracking{}, classifyNative(op, err, KindCommandFailed)
	}
	if !head.Name().IsBranch() {
		return Tracking{Branch: "HEAD", Detached: true}, nil
	}
	branch := head.Name().Short()
	upstream := n.upstreamRef(branch)
	if upstream == nil {
		return Tracking{Branch: branch}, nil
	}
	ahead, behind, err := n.aheadBehind(head.Hash(), upstream.Hash())
	if err != nil {
		return Tracking{}, classifyNative(op, err, KindCommandFailed)
	}
	return Tracking{
		Branch: branch,
		Upstream: &Upstream{
			Name:   upstream.Name().Short(),
			Ahead:  ahead,
			Behind: behind,
		},
	}, nil
}

// upstreamRef resolves the configured upstream of branch, or origin/<branch>
// when none is configured. It returns nil when the ref does not exist.
func (n *native) upstreamRef(branch string) *plumbing.Reference {
	var name plumbing.ReferenceName
	remote, merge := n.remoteFor(branch)
	if remote == "." {
		name = merge
	} else {
		name = plumbing.NewRemoteReferenceName(remote, merge.Short())
	}
	ref, err := n.repo.Reference(name, true)
	if err != nil {
		return nil
	}
	return ref
}

func (n *native) aheadBehind(local, upstream plumbing.Hash) (ahead, behind int, err error) {
	if local == upstream {
		return 0, 0, nil
	}
	mine, err := n.ancestors(local)
	if err != nil {
		return 0, 0, err
	}
	theirs, err := n.ancestors(upstream)
	if err != nil {
		return 0, 0, err
	}
	for h := range mine {
		if _, ok := theirs[h]; !ok {
			ahead++
		}
	}
	for h := range theirs {
		if _, ok := mine[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

func (n *native) ancestors(from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	iter, err := n.repo.Log(&gitlib.LogOptions{From: from})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	set := make(map[plumbing.Hash]struct{})
	err = iter.ForEach(func(c *object.Commit) error {
		set[c.Hash] = struct{}{}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	return set, nil
}

func (n *native) CommitDiff(ctx context.Context, hash string) (string, error) {
	const op = "commit diff"
	if err := canceled(op, ctx); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	h, err := n.repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return "", errorf(KindCommandFailed, op, "unknown revision %s", hash)
	}
	c, err := n.repo.CommitObject(*h)
	if err != nil {
		return "", classifyNative(op, err, KindCommandFailed)
	}
	var patch *object.Patch
	if c.NumParents() == 0 {
		tree, err := c.Tree()
		if err != nil {
			return "", classifyNative(op, err, KindCommandFailed)
		}
		changes, err := object.DiffTreeWithOptions(ctx, nil, tree, nil)
		if err != nil {
			return "", classifyNative(op, err, KindCommandFailed)
		}
		patch, err = changes.PatchContext(ctx)
		if err != nil {
			return "", classifyNative(op, err, KindCommandFailed)
		}
	} else {
		parent, err := c.Parent(0)
		if err != nil {
			return "", classifyNative(op, err, KindCommandFailed)
		}
		patch, err = parent.PatchContext(ctx, c)
		if err != nil {
			return "", classifyNative(op, err, KindCommandFailed)
		}
	}
	return patch.String(), nil
}
