// Package prefs handles flyover user preferences persistence.
// Preferences are stored in ~/.config/flyover/prefs.toml.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
	toml "github.com/pelletier/go-toml/v2"
)

var log = logging.Logger("prefs")

// Position is a cell offset.
type Position struct {
	X int `toml:"x"`
	Y int `toml:"y"`
}

// Prefs holds user preferences for flyover.
type Prefs struct {
	Theme             string            `toml:"theme"`
	Opacity           int               `toml:"opacity"`  // overlay opacity percent
	Position          Position          `toml:"position"` // overlay canvas origin
	Hotkeys           map[string]string `toml:"hotkeys"`  // action -> combo
	GlobalHotkeys     bool              `toml:"global_hotkeys"`
	ShowNotifications bool              `toml:"show_notifications"`
	ToastDurationMS   int               `toml:"toast_duration_ms"`
}

const (
	defaultPrefsPath     = "~/.config/flyover/prefs.toml"
	defaultTheme         = "Nightfox"
	defaultOpacity       = 95
	defaultToastDuration = 3000
)

// DefaultHotkeys maps hotkey actions to their default combos.
func DefaultHotkeys() map[string]string {
	return map[string]string{
		"TOGGLE_OVERLAY": "ctrl+shift+m",
		"PLAY_PAUSE":     "ctrl+shift+space",
		"NEXT_TRACK":     "ctrl+shift+right",
		"PREV_TRACK":     "ctrl+shift+left",
		"VOLUME_UP":      "ctrl+shift+up",
		"VOLUME_DOWN":    "ctrl+shift+down",
	}
}

// Defaults returns a fresh set of default preferences.
func Defaults() Prefs {
	return Prefs{
		Theme:             defaultTheme,
		Opacity:           defaultOpacity,
		Hotkeys:           DefaultHotkeys(),
		ShowNotifications: true,
		ToastDurationMS:   defaultToastDuration,
	}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Defaults(), nil
	}

	prefs := Defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	// Keys absent from the file keep their defaults; hotkeys merge.
	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		log.Warnf("ignoring malformed prefs %s: %v", resolved, err)
		return Defaults(), nil // Graceful degradation
	}

	return prefs.normalized(), nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

// Watch calls fn with freshly loaded preferences whenever the file at path is
// written or replaced, until ctx is cancelled. The parent directory is
// watched so editors that save by rename are picked up.
func Watch(ctx context.Context, path string, fn func(Prefs)) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != resolved {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					p, _ := Load(resolved)
					fn(p)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("prefs watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (p Prefs) normalized() Prefs {
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	p.Opacity = ClampOpacity(p.Opacity)
	if p.ToastDurationMS <= 0 {
		p.ToastDurationMS = defaultToastDuration
	}
	if p.Position.X < 0 {
		p.Position.X = 0
	}
	if p.Position.Y < 0 {
		p.Position.Y = 0
	}
	merged := DefaultHotkeys()
	for action, combo := range p.Hotkeys {
		merged[action] = combo // "" disables an action
	}
	p.Hotkeys = merged
	return p
}

// ClampOpacity bounds an opacity percentage to [0, 100].
func ClampOpacity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
