package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/flyover/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("flyover", flag.ContinueOnError)
	configPath := fs.String("config", "", "override config path (optional)")
	prefsPath := fs.String("prefs", "", "override preferences path (optional)")
	pollMillis := fs.Int("poll", 0, "playback poll interval in milliseconds (optional, defaults to 1000)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (optional)")
	version := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: flyover [flags] [overlay]\n\n")
		fmt.Fprintf(fs.Output(), "Without a command flyover runs the control panel; \"overlay\" runs the\noverlay, which follows a running control panel.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if *version {
		fmt.Println("flyover", app.Version)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		LogLevel:   *logLevel,
	}
	if poll := *pollMillis; poll > 0 {
		opts.PollInterval = time.Duration(poll) * time.Millisecond
	}

	runSurface := app.RunControl
	switch cmd := fs.Arg(0); cmd {
	case "":
	case "overlay":
		runSurface = app.RunOverlay
	default:
		fmt.Fprintf(os.Stderr, "flyover: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err := runSurface(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "flyover: %v\n", err)
		return 1
	}
	return 0
}
