// Package hotkeys maps user hotkey preferences onto accelerators and
// registers them with a surface.
package hotkeys

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hotkeys")

// Hotkey actions.
const (
	ToggleOverlay = "TOGGLE_OVERLAY"
	PlayPause     = "PLAY_PAUSE"
	NextTrack     = "NEXT_TRACK"
	PrevTrack     = "PREV_TRACK"
	VolumeUp      = "VOLUME_UP"
	VolumeDown    = "VOLUME_DOWN"
)

// Normalize lowercases a combo and sorts its parts so "Shift+Ctrl+M" and
// "ctrl+shift+m" compare equal.
func Normalize(combo string) string {
	parts := strings.Split(strings.ToLower(combo), "+")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return strings.Join(out, "+")
}

var specialKeys = map[string]string{
	" ":          "Space",
	"space":      "Space",
	"arrowup":    "Up",
	"arrowdown":  "Down",
	"arrowleft":  "Left",
	"arrowright": "Right",
	"up":         "Up",
	"down":       "Down",
	"left":       "Left",
	"right":      "Right",
	"escape":     "Esc",
	"esc":        "Esc",
	"enter":      "Enter",
	"tab":        "Tab",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
}

var functionKey = regexp.MustCompile(`^f\d{1,2}$`)

func acceleratorPart(p string) string {
	lower := strings.ToLower(p)
	switch lower {
	case "ctrl", "meta", "cmd", "cmdorctrl":
		return "CmdOrCtrl"
	case "alt":
		return "Alt"
	case "shift":
		return "Shift"
	}
	if special, ok := specialKeys[lower]; ok {
		return special
	}
	if functionKey.MatchString(lower) {
		return strings.ToUpper(lower)
	}
	runes := []rune(p)
	if len(runes) == 1 {
		return strings.ToUpper(p)
	}
	return string(unicode.ToUpper(runes[0])) + string(runes[1:])
}

// Accelerator converts a combo such as "ctrl+shift+space" into the
// accelerator form "CmdOrCtrl+Shift+Space". Parts keep their order and
// duplicates are dropped.
func Accelerator(combo string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, raw := range strings.Split(combo, "+") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		part := acceleratorPart(raw)
		if seen[part] {
			continue
		}
		seen[part] = true
		parts = append(parts, part)
	}
	return strings.Join(parts, "+")
}

// AcceleratorMap converts action -> combo preferences, skipping disabled
// (empty) entries.
func AcceleratorMap(hotkeys map[string]string) map[string]string {
	out := make(map[string]string, len(hotkeys))
	for action, combo := range hotkeys {
		if strings.TrimSpace(combo) == "" {
			continue
		}
		out[action] = Accelerator(combo)
	}
	return out
}

// Failure records an accelerator that could not be registered.
type Failure struct {
	Action      string
	Accelerator string
	Reason      string
}

// Result reports a registration pass.
type Result struct {
	Registered []string
	Failed     []Failure
}

// Summary is the toast text for a registration pass.
func (r Result) Summary() string {
	if len(r.Failed) > 0 {
		return fmt.Sprintf("Global hotkeys: %d registered, %d failed", len(r.Registered), len(r.Failed))
	}
	return fmt.Sprintf("Global hotkeys registered (%d)", len(r.Registered))
}

// Registrar installs accelerators for actions.
type Registrar interface {
	Register(accelerators map[string]string) Result
	UnregisterAll()
}

// TerminalRegistrar binds accelerators to Bubble Tea key strings. Combos
// a terminal cannot report (ctrl+shift+letter, modified space, modified
// function keys) fail.
type TerminalRegistrar struct {
	mu    sync.RWMutex
	byKey map[string]string // key string -> action
}

var _ Registrar = (*TerminalRegistrar)(nil)

// NewTerminalRegistrar returns an empty registrar.
func NewTerminalRegistrar() *TerminalRegistrar {
	return &TerminalRegistrar{byKey: make(map[string]string)}
}

// Register replaces the current bindings.
func (t *TerminalRegistrar) Register(accelerators map[string]string) Result {
	actions := make([]string, 0, len(accelerators))
	for action := range accelerators {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	byKey := make(map[string]string, len(accelerators))
	var res Result
	for _, action := range actions {
		accel := accelerators[action]
		keyStr, err := TerminalKey(accel)
		if err == nil {
			if other, taken := byKey[keyStr]; taken {
				err = fmt.Errorf("already bound to %s", other)
			}
		}
		if err != nil {
			res.Failed = append(res.Failed, Failure{Action: action, Accelerator: accel, Reason: err.Error()})
			continue
		}
		byKey[keyStr] = action
		res.Registered = append(res.Registered, action)
	}

	t.mu.Lock()
	t.byKey = byKey
	t.mu.Unlock()
	if len(res.Failed) > 0 {
		log.Warnw("hotkey registration failures", "failed", res.Failed)
	}
	return res
}

// UnregisterAll drops every binding.
func (t *TerminalRegistrar) UnregisterAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[string]string)
}

// Lookup returns the action bound to a Bubble Tea key string.
func (t *TerminalRegistrar) Lookup(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	action, ok := t.byKey[key]
	return action, ok
}

var terminalNamed = map[string]string{
	"Up":        "up",
	"Down":      "down",
	"Left":      "left",
	"Right":     "right",
	"Esc":       "esc",
	"Enter":     "enter",
	"Tab":       "tab",
	"Backspace": "backspace",
	"Delete":    "delete",
	"Home":      "home",
	"End":       "end",
	"PageUp":    "pgup",
	"PageDown":  "pgdown",
}

// TerminalKey translates an accelerator into the string Bubble Tea reports
// for that key press.
func TerminalKey(accel string) (string, error) {
	var ctrl, alt, shift bool
	var key string
	for _, part := range strings.Split(accel, "+") {
		switch part {
		case "CmdOrCtrl":
			ctrl = true
		case "Alt":
			alt = true
		case "Shift":
			shift = true
		case "":
		default:
			if key != "" {
				return "", fmt.Errorf("more than one key in %q", accel)
			}
			key = part
		}
	}
	if key == "" {
		return "", fmt.Errorf("no key in %q", accel)
	}
	prefix := ""
	if alt {
		prefix = "alt+"
	}

	switch {
	case key == "Space":
		if ctrl || shift || alt {
			return "", fmt.Errorf("terminal cannot report modified space")
		}
		return " ", nil
	case functionKey.MatchString(strings.ToLower(key)):
		if ctrl || shift || alt {
			return "", fmt.Errorf("terminal cannot report modified function keys")
		}
		return strings.ToLower(key), nil
	}

	if name, ok := terminalNamed[key]; ok {
		switch name {
		case "up", "down", "left", "right", "home", "end":
			mods := ""
			if ctrl {
				mods += "ctrl+"
			}
			if shift {
				mods += "shift+"
			}
			return prefix + mods + name, nil
		case "tab":
			if ctrl {
				return "", fmt.Errorf("terminal cannot report ctrl+tab")
			}
			if shift {
				return prefix + "shift+tab", nil
			}
			return prefix + name, nil
		default:
			if ctrl || shift {
				return "", fmt.Errorf("terminal cannot report modified %s", name)
			}
			return prefix + name, nil
		}
	}

	runes := []rune(key)
	if len(runes) != 1 {
		return "", fmt.Errorf("unknown key %q", key)
	}
	r := runes[0]
	if unicode.IsLetter(r) && r < unicode.MaxASCII {
		lower := string(unicode.ToLower(r))
		switch {
		case ctrl && shift:
			return "", fmt.Errorf("terminal cannot distinguish ctrl+shift+%s", lower)
		case ctrl:
			return prefix + "ctrl+" + lower, nil
		case shift:
			return prefix + strings.ToUpper(lower), nil
		default:
			return prefix + lower, nil
		}
	}
	if ctrl || shift {
		return "", fmt.Errorf("terminal cannot report modified %q", key)
	}
	return prefix + key, nil
}
