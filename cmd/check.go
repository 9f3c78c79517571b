package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/siori-go/internal/engine"
)

const checkRecentCommits = 10

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Print the repository status without starting the UI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.open(repoArg(args))
			if err != nil {
				return err
			}
			e := engine.New(engine.RepositoryContext{Backend: b}, opts.engineOptions())
			defer e.Close()
			snap, err := e.Refresh(contextOr(cmd.Context()))
			if err != nil {
				return err
			}
			printCheck(cmd, snap)
			return nil
		},
	}
}

func printCheck(cmd *cobra.Command, snap *engine.Snapshot) {
	out := cmd.OutOrStdout()
	t := snap.Tracking
	branch := t.Branch
	switch {
	case len(snap.Commits) == 0:
		branch += " (no commits yet)"
	case t.Detached:
		head, _ := snap.Head()
		branch = "HEAD (detached at " + head.ShortHash() + ")"
	}
	fmt.Fprintf(out, "Repository: %s\n", snap.Repo)
	fmt.Fprintf(out, "Branch: %s\n", branch)
	if t.Upstream == nil {
		fmt.Fprintln(out, "Upstream: none")
	} else {
		fmt.Fprintf(out, "Upstream: %s (ahead %d, behind %d)\n", t.Upstream.Name, t.Upstream.Ahead, t.Upstream.Behind)
	}
	fmt.Fprintf(out, "Staged: %d files\n", len(snap.Staged()))
	fmt.Fprintf(out, "Changes: %d files\n", len(snap.Unstaged()))
	fmt.Fprintf(out, "Recent commits: %d\n", min(len(snap.Commits), checkRecentCommits))
	fmt.Fprintln(out, "siori: All checks passed!")
}

// contextOr returns ctx, or a background context when cobra ran without one.
func contextOr(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
