package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/siori-go/internal/git"
	"github.com/thiagokokada/siori-go/internal/git/backend"
	"github.com/thiagokokada/siori-go/internal/highlight"
)

type diffOptions struct {
	dir    string
	file   string
	staged bool
	color  string
}

func newDiffCmd(opts *globalOptions) *cobra.Command {
	d := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff [-C path] [<commit> | --file <path> [--staged]]",
		Short: "Print the diff of a commit or of a changed file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.staged && d.file == "" {
				return errors.New("--staged needs --file")
			}
			switch strings.ToLower(d.color) {
			case "auto", "always", "never":
			default:
				return fmt.Errorf("invalid --color %q: want auto, always, or never", d.color)
			}
			b, err := opts.open(d.dir)
			if err != nil {
				return err
			}
			ctx := contextOr(cmd.Context())
			var text string
			if d.file != "" {
				raw, err := b.FileDiff(ctx, d.file, d.staged)
				if err != nil {
					return err
				}
				text, _ = git.LocalDiff(d.file, d.staged, raw)
			} else {
				rev := "HEAD"
				if len(args) > 0 {
					rev = args[0]
				}
				if text, err = commitDiff(cmd, b, opts.cfg.Log.Window, rev); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if d.colorize(out) {
				text = highlight.New(highlight.Resolve(opts.cfg.UI.Theme)).Diff(text)
			}
			_, err = io.WriteString(out, text)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&d.dir, "directory", "C", ".", "run as if started in this directory")
	flags.StringVar(&d.file, "file", "", "show the uncommitted changes of this file")
	flags.BoolVar(&d.staged, "staged", false, "with --file, show the changes in the index")
	flags.StringVar(&d.color, "color", "auto", "colorize output: auto, always, or never")
	return cmd
}

func (d *diffOptions) colorize(out io.Writer) bool {
	switch strings.ToLower(d.color) {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := out.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// commitDiff returns the diff of rev, headed by the commit description when
// rev is within the loaded log window.
func commitDiff(cmd *cobra.Command, b backend.Backend, window int, rev string) (string, error) {
	ctx := contextOr(cmd.Context())
	raw, err := b.CommitDiff(ctx, rev)
	if err != nil {
		return "", err
	}
	commits, err := b.Log(ctx, window)
	if err != nil {
		return "", err
	}
	for i, c := range commits {
		if (rev == "HEAD" && i == 0) || (len(rev) >= 4 && strings.HasPrefix(c.Hash, rev)) {
			text, _ := git.CommitDiff(c, raw)
			return text, nil
		}
	}
	return raw, nil
}
