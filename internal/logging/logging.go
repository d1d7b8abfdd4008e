// Package logging configures the process-wide go-log backend.
// Packages obtain their own subsystem loggers with logging.Logger("name").
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	golog "github.com/ipfs/go-log/v2"
)

// Options controls where and how verbosely logs are written.
type Options struct {
	File  string // empty writes to stderr
	Level string // debug, info, warn, error
}

const defaultLevel = "info"

// Setup points every subsystem logger at the configured sink. The TUI owns
// the terminal, so callers normally pass a file; entries are JSON lines that
// logtail can parse back.
func Setup(opts Options) error {
	level := strings.TrimSpace(strings.ToLower(opts.Level))
	if level == "" {
		level = defaultLevel
	}
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", opts.Level, err)
	}

	cfg := golog.Config{
		Format: golog.JSONOutput,
		Level:  lvl,
	}
	if file := strings.TrimSpace(opts.File); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		cfg.File = file
	} else {
		cfg.Stderr = true
	}
	golog.SetupLogging(cfg)
	return nil
}
