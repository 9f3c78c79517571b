package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/adrg/xdg"
)

const logRelPath = "siori/siori.log"

// setupLogging installs the default slog logger. The terminal belongs to the
// UI, so logs go to a file: logFile when set, the XDG state directory when
// verbose, nowhere otherwise.
func setupLogging(verbose bool, logFile string) (func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if !verbose && logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() error { return nil }, nil
	}
	path := logFile
	if path == "" {
		p, err := xdg.StateFile(logRelPath)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		path = p
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return f.Close, nil
}
