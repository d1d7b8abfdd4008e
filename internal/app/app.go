package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/oauth2"

	"github.com/five82/flyover/internal/auth"
	"github.com/five82/flyover/internal/bridge"
	"github.com/five82/flyover/internal/config"
	"github.com/five82/flyover/internal/hotkeys"
	"github.com/five82/flyover/internal/logging"
	"github.com/five82/flyover/internal/media"
	"github.com/five82/flyover/internal/metrics"
	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/overlay"
	"github.com/five82/flyover/internal/prefs"
	"github.com/five82/flyover/internal/remote"
	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/storage"
	"github.com/five82/flyover/internal/ui"
	"github.com/five82/flyover/internal/webapi"
)

// Version is stamped at build time.
var Version = "dev"

// Options configure either surface.
type Options struct {
	ConfigPath   string
	PrefsPath    string        // empty uses ~/.config/flyover/prefs.toml
	PollInterval time.Duration // zero uses the config value
	LogLevel     string        // empty uses the config value
}

// env is what both surfaces load before starting.
type env struct {
	cfg       config.Config
	prefs     prefs.Prefs
	prefsPath string
	kv        storage.KV
}

func load(opts Options) (env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return env{}, fmt.Errorf("load config: %w", err)
	}
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel}); err != nil {
		return env{}, fmt.Errorf("setup logging: %w", err)
	}

	path := opts.PrefsPath
	if path == "" {
		path = prefs.DefaultPath()
	}
	p, err := prefs.Load(path)
	if err != nil {
		log.Warnw("load prefs, using defaults", "path", path, "error", err)
	}

	return env{
		cfg:       cfg,
		prefs:     p,
		prefsPath: path,
		kv:        storage.OpenOrMemory(cfg.DataDir),
	}, nil
}

// RunControl boots the control panel: the sync client, the bridge server and
// the Bubble Tea program. It blocks until the user quits or ctx is cancelled.
func RunControl(ctx context.Context, opts Options) error {
	e, err := load(opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.kv.Close() }()
	log.Infow("starting control panel", "version", Version, "bridge", e.cfg.BridgeAddr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	if e.cfg.MetricsAddr != "" {
		if _, err := m.Serve(ctx, e.cfg.MetricsAddr); err != nil {
			log.Warnw("metrics disabled", "error", err)
		}
	}

	clientID := auth.ResolveClientID(e.kv, e.cfg.ClientID)
	session := auth.NewSession(e.kv, nil)
	if clientID != "" {
		session.SetExchanger(auth.NewExchanger(clientID, e.cfg.AccountsURL, e.cfg.RedirectURL()))
	}

	api, err := webapi.NewClient(e.cfg.APIBaseURL, session, webapi.WithObserver(m.ObserveRequest))
	if err != nil {
		return fmt.Errorf("init web api client: %w", err)
	}

	store := &state.Store{}
	client, err := remote.New(remote.Options{
		API:          api,
		Store:        store,
		Credentials:  session,
		Authorize:    authorizer(e, session),
		PollInterval: e.cfg.PollInterval,
		QueueFactor:  e.cfg.QueuePollFactor,
		Recorder:     m,
	})
	if err != nil {
		return fmt.Errorf("init sync client: %w", err)
	}
	defer client.Close()

	server := bridge.NewServer(
		bridge.WithReplay(func() []bridge.Message { return replay(store.Snapshot()) }),
		bridge.WithRecorder(m),
	)
	if _, err := server.Start(ctx, e.cfg.BridgeAddr); err != nil {
		// The panel still works without an overlay.
		log.Warnw("bridge unavailable", "addr", e.cfg.BridgeAddr, "error", err)
	}
	defer server.Close()

	notifier := notify.NewNotifier(time.Duration(e.prefs.ToastDurationMS) * time.Millisecond)
	notifier.SetMuted(!e.prefs.ShowNotifications)
	unsubscribe := mirror(store, notifier, server)
	defer unsubscribe()

	mpris, err := media.Start(ctx, store, client)
	switch {
	case errors.Is(err, media.ErrUnsupported):
		log.Debugw("media keys unsupported on this platform")
	case err != nil:
		log.Warnw("media keys unavailable", "error", err)
	default:
		defer func() { _ = mpris.Close() }()
	}

	if !client.Resume(ctx) {
		log.Infow("no stored credentials; waiting for connect")
	}

	return ui.Run(ctx, ui.Options{
		Store:      store,
		Controller: client,
		Bridge:     server,
		Notifier:   notifier,
		Hotkeys:    hotkeys.NewTerminalRegistrar(),
		Prefs:      e.prefs,
		PrefsPath:  e.prefsPath,
		ClientID:   clientID,
		LogFile:    e.cfg.LogFile,
		Version:    Version,
	}, func(send func(tea.Msg)) {
		watchPrefs(ctx, e.prefsPath, func(p prefs.Prefs) { send(ui.PrefsMsg(p)) })
	})
}

// RunOverlay boots the overlay. It renders whatever the control panel
// forwards and reconnects when the panel restarts.
func RunOverlay(ctx context.Context, opts Options) error {
	e, err := load(opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.kv.Close() }()
	log.Infow("starting overlay", "version", Version, "bridge", e.cfg.BridgeAddr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := bridge.NewClient(e.cfg.BridgeAddr)
	return overlay.Run(ctx, overlay.Options{
		KV:    e.kv,
		Prefs: e.prefs,
	}, func(send func(tea.Msg)) {
		client.OnUpdate(func(msg bridge.Message) { send(msg) })
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("bridge client stopped", "error", err)
			}
		}()
		watchPrefs(ctx, e.prefsPath, func(p prefs.Prefs) { send(overlay.PrefsMsg(p)) })
	})
}

// authorizer runs the PKCE flow for a client id and points the session's
// refresh at it.
func authorizer(e env, session *auth.Session) remote.Authorizer {
	return func(ctx context.Context, clientID string) (*oauth2.Token, error) {
		clientID = auth.ResolveClientID(e.kv, clientID)
		ex := auth.NewExchanger(clientID, e.cfg.AccountsURL, e.cfg.RedirectURL())
		session.SetExchanger(ex)
		flow := &auth.Flow{
			Exchanger: ex,
			KV:        e.kv,
			Port:      e.cfg.RedirectPort,
		}
		return flow.Run(ctx)
	}
}

// replay turns a snapshot into the state changes a newly connected overlay
// needs to catch up.
func replay(snap state.Snapshot) []bridge.Message {
	events := snap.ReplayEvents()
	msgs := make([]bridge.Message, 0, len(events))
	for _, ev := range events {
		msg, err := bridge.StateChange(ev)
		if err != nil {
			log.Warnw("encode replay event", "kind", ev.Kind, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// mirror forwards every store change and every delivered toast to the
// overlay, in the order they happen.
func mirror(store *state.Store, notifier *notify.Notifier, fwd ui.Forwarder) (unsubscribe func()) {
	notifier.Listen(func(t notify.Toast) {
		msg, err := bridge.MirrorToast(t)
		if err != nil {
			log.Warnw("encode toast", "error", err)
			return
		}
		fwd.Forward(msg)
	})
	return store.Subscribe(func(ev state.Event) {
		msg, err := bridge.StateChange(ev)
		if err != nil {
			log.Warnw("encode state change", "kind", ev.Kind, "error", err)
			return
		}
		fwd.Forward(msg)
	})
}

func watchPrefs(ctx context.Context, path string, fn func(prefs.Prefs)) {
	if err := prefs.Watch(ctx, path, fn); err != nil {
		log.Warnw("prefs reload disabled", "path", path, "error", err)
	}
}
