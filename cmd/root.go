// Package cmd implements the siori command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/siori-go/internal/buildinfo"
	"github.com/thiagokokada/siori-go/internal/config"
	"github.com/thiagokokada/siori-go/internal/engine"
	"github.com/thiagokokada/siori-go/internal/git/backend"
	"github.com/thiagokokada/siori-go/internal/highlight"
	"github.com/thiagokokada/siori-go/internal/tui"
	"github.com/thiagokokada/siori-go/internal/watch"
)

func Run() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	backend    string
	window     int
	verbose    bool
	logFile    string

	cfg     config.Config
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var (
		mode     string
		noWatch  bool
		noSyntax bool
	)
	root := &cobra.Command{
		Use:           "siori [path]",
		Short:         "A terminal git client for everyday staging, committing and pushing",
		Args:          cobra.MaximumNArgs(1),
		Version:       buildinfo.VersionWithTags(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("mode") {
				opts.cfg.UI.Theme = mode
			}
			if noWatch {
				opts.cfg.Watch.Enabled = false
			}
			return runTUI(opts, repoArg(args), !noSyntax)
		},
	}
	root.SetVersionTemplate("siori {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default: ~/.config/siori/config.toml)")
	flags.StringVar(&opts.backend, "backend", "", "repository backend: native or gitcli")
	flags.IntVar(&opts.window, "window", 0, "number of commits to load in the log")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable verbose logging")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file")

	local := root.Flags()
	local.StringVar(&mode, "mode", config.ThemeAuto, "color mode: auto, light, or dark")
	local.BoolVar(&noWatch, "nowatch", false, "disable automatic reload when the repository changes")
	local.BoolVar(&noSyntax, "nosyntax", false, "disable syntax highlighting in the diff viewer")

	root.AddCommand(newCheckCmd(opts), newDiffCmd(opts), newVersionCmd())
	return root
}

func repoArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// setup loads the configuration and installs the logger. Flags win over the
// configuration file.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	closeLog, err := setupLogging(o.verbose, o.logFile)
	if err != nil {
		return err
	}
	o.closeLog = closeLog

	cfg, err := config.Load(o.configPath)
	if err != nil {
		if o.configPath != "" {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "siori: %v (using defaults)\n", err)
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend.Kind = o.backend
	}
	if o.window > 0 {
		cfg.Log.Window = o.window
	}
	o.cfg = cfg
	return nil
}

func (o *globalOptions) teardown() error {
	if o.closeLog == nil {
		return nil
	}
	return o.closeLog()
}

func (o *globalOptions) open(path string) (backend.Backend, error) {
	kind, err := backend.ParseKind(o.cfg.Backend.Kind)
	if err != nil {
		return nil, err
	}
	return backend.Open(kind, path)
}

func (o *globalOptions) engineOptions() engine.Options {
	return engine.Options{LogWindow: o.cfg.Log.Window}
}

func runTUI(opts *globalOptions, path string, syntax bool) error {
	var watchFn engine.WatchFunc
	if opts.cfg.Watch.Enabled {
		wopts := watch.Options{
			Debounce: opts.cfg.Watch.Debounce.Duration,
			Interval: opts.cfg.Watch.Interval.Duration,
		}
		if wopts.Interval == 0 {
			// A zero interval in the configuration file turns the ticker off.
			wopts.Interval = -1
		}
		watchFn = func(root string, signal chan<- struct{}) (io.Closer, error) {
			return watch.New(root, signal, wopts)
		}
	}
	ws := engine.NewWorkspace(opts.open, opts.engineOptions(), watchFn)
	defer ws.Close()
	if _, err := ws.Switch(path); err != nil {
		return fmt.Errorf("%w\nRun 'siori check' to verify the repository status", err)
	}

	var hl *highlight.Highlighter
	if syntax {
		hl = highlight.New(highlight.Resolve(opts.cfg.UI.Theme))
	}
	baseDir, err := os.Getwd()
	if err != nil {
		baseDir = filepath.Dir(ws.Current().Repo())
	}
	slog.Debug("starting ui", slog.String("repo", ws.Current().Repo()), slog.String("base", baseDir))
	return tui.Run(ws, tui.Options{Config: opts.cfg, Highlighter: hl, BaseDir: baseDir})
}
