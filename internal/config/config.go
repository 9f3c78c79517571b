// Package config loads the siori configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const relPath = "siori/config.toml"

type Config struct {
	UI      UI      `toml:"ui"`
	Colors  Colors  `toml:"colors"`
	Watch   Watch   `toml:"watch"`
	Log     Log     `toml:"log"`
	Backend Backend `toml:"backend"`
}

type UI struct {
	ShowHints bool `toml:"show_hints"`
	// Theme is auto, light or dark. Auto follows the desktop setting.
	Theme string `toml:"theme"`
}

// Colors are named terminal colors (red, light_blue, dark_gray, ...) or
// #rrggbb values. Empty fields use the built-in palette.
type Colors struct {
	Staged     Color `toml:"staged"`
	Modified   Color `toml:"modified"`
	Untracked  Color `toml:"untracked"`
	SelectedBG Color `toml:"selected_bg"`
	Text       Color `toml:"text"`
	TextBright Color `toml:"text_bright"`
	Dim        Color `toml:"dim"`
	Info       Color `toml:"info"`
}

type Watch struct {
	Enabled  bool     `toml:"enabled"`
	Debounce Duration `toml:"debounce"`
	Interval Duration `toml:"interval"`
}

type Log struct {
	// Window is the number of commits loaded in the log view.
	Window int `toml:"window"`
}

type Backend struct {
	Kind string `toml:"kind"`
}

const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

func Default() Config {
	return Config{
		UI: UI{ShowHints: true, Theme: ThemeAuto},
		Watch: Watch{
			Enabled:  true,
			Debounce: Duration{250 * time.Millisecond},
			Interval: Duration{3 * time.Second},
		},
		Log:     Log{Window: 500},
		Backend: Backend{Kind: "native"},
	}
}

// Path returns the configuration file to use, preferring
// ~/.config/siori/config.toml over the platform config directory.
func Path() (string, bool) {
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", filepath.FromSlash(relPath))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	if p, err := xdg.SearchConfigFile(relPath); err == nil {
		return p, true
	}
	return "", false
}

// Load reads the file at path, or the file found by Path when path is empty.
// A missing file is not an error. On error the defaults are returned along
// with it so callers can carry on.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, ok := Path()
		if !ok {
			return cfg, nil
		}
		path = p
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", slog.String("file", path), slog.String("key", key.String()))
	}
	cfg.normalize(path)
	slog.Debug("config loaded", slog.String("file", path))
	return cfg, nil
}

func (c *Config) normalize(path string) {
	def := Default()
	switch strings.ToLower(strings.TrimSpace(c.UI.Theme)) {
	case ThemeLight:
		c.UI.Theme = ThemeLight
	case ThemeDark:
		c.UI.Theme = ThemeDark
	case ThemeAuto, "":
		c.UI.Theme = ThemeAuto
	default:
		slog.Warn("unknown theme, using auto", slog.String("file", path), slog.String("theme", c.UI.Theme))
		c.UI.Theme = ThemeAuto
	}
	if c.Log.Window <= 0 {
		c.Log.Window = def.Log.Window
	}
	if c.Watch.Debounce.Duration <= 0 {
		c.Watch.Debounce = def.Watch.Debounce
	}
	if c.Watch.Interval.Duration < 0 {
		c.Watch.Interval = def.Watch.Interval
	}
	for name, col := range c.Colors.fields() {
		if !col.Valid() {
			slog.Warn("invalid color, using default", slog.String("file", path),
				slog.String("key", "colors."+name), slog.String("value", string(*col)))
			*col = ""
		}
	}
}

func (c *Colors) fields() map[string]*Color {
	return map[string]*Color{
		"staged":      &c.Staged,
		"modified":    &c.Modified,
		"untracked":   &c.Untracked,
		"selected_bg": &c.SelectedBG,
		"text":        &c.Text,
		"text_bright": &c.TextBright,
		"dim":         &c.Dim,
		"info":        &c.Info,
	}
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Color string

// ansi maps color names to the 16 standard terminal colors.
var ansi = map[string]string{
	"black":         "0",
	"red":           "1",
	"green":         "2",
	"yellow":        "3",
	"blue":          "4",
	"magenta":       "5",
	"cyan":          "6",
	"white":         "7",
	"gray":          "8",
	"grey":          "8",
	"dark_gray":     "8",
	"darkgray":      "8",
	"light_red":     "9",
	"lightred":      "9",
	"light_green":   "10",
	"lightgreen":    "10",
	"light_yellow":  "11",
	"lightyellow":   "11",
	"light_blue":    "12",
	"lightblue":     "12",
	"light_magenta": "13",
	"lightmagenta":  "13",
	"light_cyan":    "14",
	"lightcyan":     "14",
	"bright_white":  "15",
}

func (c Color) Valid() bool {
	_, ok := c.spec()
	return ok
}

// Spec returns the color as a terminal color spec (an ANSI index or a hex
// value), or def when the color is unset. "reset" and "default" yield "",
// the terminal default.
func (c Color) Spec(def string) string {
	if spec, ok := c.spec(); ok && c != "" {
		return spec
	}
	return def
}

func (c Color) spec() (string, bool) {
	s := strings.ToLower(strings.TrimSpace(string(c)))
	switch s {
	case "":
		return "", true
	case "reset", "default":
		return "", true
	}
	if v, ok := ansi[s]; ok {
		return v, true
	}
	if len(s) == 7 && s[0] == '#' {
		if _, err := strconv.ParseUint(s[1:], 16, 32); err == nil {
			return s, true
		}
	}
	return "", false
}
