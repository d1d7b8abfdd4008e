package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/flyover/internal/bridge"
	"github.com/five82/flyover/internal/hotkeys"
	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/prefs"
	"github.com/five82/flyover/internal/remote"
	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/theme"
)

// Controller carries out the panel's commands. *remote.SyncClient
// satisfies it.
type Controller interface {
	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SeekForward(ctx context.Context) error
	SeekBackward(ctx context.Context) error
	VolumeUp(ctx context.Context) error
	VolumeDown(ctx context.Context) error
	ToggleShuffle(ctx context.Context) error
	CycleRepeat(ctx context.Context) error
	AddToQueue(ctx context.Context, uri string) error
	PlayURI(ctx context.Context, uri string) error
	Search(ctx context.Context, query string, types []string, limit int) ([]state.SearchResult, error)
	CycleDevice(ctx context.Context) (state.Device, error)
	Authenticate(ctx context.Context, clientID string) error
	Logout() error
}

// Forwarder carries commands to the overlay. *bridge.Server satisfies it.
type Forwarder interface {
	Forward(msg bridge.Message)
}

// HotkeyRegistrar installs global hotkeys and resolves key presses to
// actions. *hotkeys.TerminalRegistrar satisfies it.
type HotkeyRegistrar interface {
	hotkeys.Registrar
	Lookup(key string) (string, bool)
}

// View represents the current active view.
type View int

const (
	ViewMain View = iota
	ViewLogs
)

// Options configures the control panel.
type Options struct {
	Store      *state.Store
	Controller Controller
	Bridge     Forwarder
	Notifier   *notify.Notifier
	Hotkeys    HotkeyRegistrar
	Prefs      prefs.Prefs
	PrefsPath  string // empty disables saving
	ClientID   string
	LogFile    string
	Version    string
	Tick       time.Duration
	Now        func() time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Collaborators
	store     *state.Store
	ctrl      Controller
	bridge    Forwarder
	notifier  *notify.Notifier
	hotkeys   HotkeyRegistrar
	prefsPath string
	clientID  string
	version   string
	tick      time.Duration
	now       func() time.Time

	// UI state
	keys        keyMap
	prefs       prefs.Prefs
	theme       theme.Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	connecting  bool

	// Data state
	snapshot state.Snapshot
	toasts   *notify.Stack
	search   searchState
	logs     logState

	startup []noticeMsg
}

// New creates a control panel model.
func New(opts Options) Model {
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultUIInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}

	m := Model{
		store:       opts.Store,
		ctrl:        opts.Controller,
		bridge:      opts.Bridge,
		notifier:    opts.Notifier,
		hotkeys:     opts.Hotkeys,
		prefsPath:   opts.PrefsPath,
		clientID:    strings.TrimSpace(opts.ClientID),
		version:     opts.Version,
		tick:        tick,
		now:         now,
		keys:        DefaultKeyMap(),
		prefs:       p,
		theme:       theme.Get(p.Theme),
		currentView: ViewMain,
		toasts:      notify.NewStack(ToastLimit),
		search:      newSearchState(),
		logs:        newLogState(opts.LogFile),
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	if p.GlobalHotkeys && m.hotkeys != nil {
		m.startup = append(m.startup, m.registerHotkeys())
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	for _, n := range m.startup {
		cmds = append(cmds, noticeCmd(n))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.search.clampSelection(len(m.snapshot.SearchResults))
		return m, nil

	case actionMsg:
		return m.handleAction(msg)

	case searchMsg:
		m.search.pending = false
		m.search.selected = 0
		if msg.err != nil {
			return m, m.failed("search", msg.err)
		}
		m.search.focusResults()
		return m, m.refresh()

	case deviceMsg:
		if msg.err != nil {
			return m, m.failed("switch device", msg.err)
		}
		return m, tea.Batch(m.toast(notify.Info, "Playing on "+msg.device.Name), m.refresh())

	case connectMsg:
		m.connecting = false
		if msg.err != nil {
			log.Warnw("connect failed", "error", msg.err)
			return m, m.toast(notify.Error, "Failed to connect to Spotify")
		}
		return m, tea.Batch(m.toast(notify.Success, "Connected to Spotify"), m.refresh())

	case noticeMsg:
		return m, m.toast(msg.severity, msg.text)

	case dismissMsg:
		m.toasts.Dismiss(msg.id)
		return m, nil

	case logsMsg:
		m.handleLogs(msg)
		return m, nil

	case PrefsMsg:
		m.applyPrefs(prefs.Prefs(msg))
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.search.typing() {
		return m.handleSearchInput(msg)
	}
	if m.currentView == ViewLogs && m.logs.searchActive {
		cmd, _ := m.handleLogsKey(msg)
		return m, cmd
	}
	if m.prefs.GlobalHotkeys && m.hotkeys != nil {
		if action, ok := m.hotkeys.Lookup(msg.String()); ok {
			return m, m.runHotkey(action)
		}
	}
	if m.currentView == ViewLogs {
		if cmd, handled := m.handleLogsKey(msg); handled {
			return m, cmd
		}
	}
	if m.search.browsing() {
		if cmd, handled := m.handleResultsKey(msg); handled {
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewMain
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = theme.Get(theme.Next(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		m.logs.dirty = true
		m.updateLogViewport()
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		if m.currentView == ViewLogs {
			m.currentView = ViewMain
			return m, nil
		}
		m.currentView = ViewLogs
		return m, m.refreshLogs()

	case key.Matches(msg, m.keys.Search):
		m.currentView = ViewMain
		cmd := m.search.open()
		return m, cmd

	case key.Matches(msg, m.keys.PlayPause):
		return m, m.do("toggle playback", Controller.TogglePlay)
	case key.Matches(msg, m.keys.Next):
		return m, m.do("skip track", Controller.Next)
	case key.Matches(msg, m.keys.Previous):
		return m, m.do("go to previous track", Controller.Previous)
	case key.Matches(msg, m.keys.SeekBack):
		return m, m.do("seek", Controller.SeekBackward)
	case key.Matches(msg, m.keys.SeekForward):
		return m, m.do("seek", Controller.SeekForward)
	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.do("set volume", Controller.VolumeUp)
	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.do("set volume", Controller.VolumeDown)
	case key.Matches(msg, m.keys.Shuffle):
		return m, m.do("toggle shuffle", Controller.ToggleShuffle)
	case key.Matches(msg, m.keys.Repeat):
		return m, m.do("change repeat mode", Controller.CycleRepeat)

	case key.Matches(msg, m.keys.CycleDevice):
		return m, m.cycleDevice()

	case key.Matches(msg, m.keys.Connect):
		return m.connect()

	case key.Matches(msg, m.keys.Logout):
		return m, m.do("log out", func(c Controller, _ context.Context) error { return c.Logout() })

	case key.Matches(msg, m.keys.GlobalHotkey):
		cmd := m.toggleGlobalHotkeys()
		return m, cmd

	case key.Matches(msg, m.keys.EditOverlay):
		m.forwardCommand(bridge.ActionToggleEditMode)
		return m, nil

	case key.Matches(msg, m.keys.OpacityDown):
		m.adjustOpacity(-opacityStep)
		return m, nil

	case key.Matches(msg, m.keys.OpacityUp):
		m.adjustOpacity(opacityStep)
		return m, nil
	}

	return m, nil
}

const opacityStep = 5

// do runs a controller method as a command. Without a controller it does
// nothing.
func (m Model) do(action string, fn func(Controller, context.Context) error) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return m.run(action, func(ctx context.Context) error { return fn(ctrl, ctx) })
}

// run executes fn off the UI goroutine and reports the outcome as an
// actionMsg. Failures are not retried.
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
		defer cancel()
		return actionMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) handleAction(msg actionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, m.failed(msg.action, msg.err)
	}
	cmds := []tea.Cmd{m.refresh()}
	switch msg.action {
	case "log out":
		cmds = append(cmds, m.toast(notify.Info, "Logged out of Spotify"))
	case "add to queue":
		cmds = append(cmds, m.toast(notify.Success, "Added to queue"))
	}
	return m, tea.Batch(cmds...)
}

// failed turns a command error into a one-shot error toast naming the action.
func (m *Model) failed(action string, err error) tea.Cmd {
	text := "Failed to " + action
	var ae *remote.ActionError
	if errors.As(err, &ae) {
		text = ae.Message()
	}
	log.Debugw("command failed", "action", action, "error", err)
	return m.toast(notify.Error, text)
}

// toast shows t locally and hands it to the notifier, which mirrors it to
// the overlay. A muted notifier drops everything but errors.
func (m *Model) toast(sev notify.Severity, text string) tea.Cmd {
	t := notify.New(sev, text, m.toastDuration())
	if m.notifier != nil && !m.notifier.Emit(t) {
		return nil
	}
	m.toasts.Push(t)
	return dismissCmd(t)
}

func (m Model) toastDuration() time.Duration {
	if m.prefs.ToastDurationMS > 0 {
		return time.Duration(m.prefs.ToastDurationMS) * time.Millisecond
	}
	return notify.DefaultDuration
}

func (m Model) cycleDevice() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
		defer cancel()
		d, err := ctrl.CycleDevice(ctx)
		return deviceMsg{device: d, err: err}
	}
}

func (m Model) connect() (tea.Model, tea.Cmd) {
	if m.ctrl == nil || m.connecting {
		return m, nil
	}
	if m.clientID == "" {
		return m, m.toast(notify.Error, "Set client_id in the config to connect")
	}
	m.connecting = true
	ctrl, clientID := m.ctrl, m.clientID
	return m, tea.Batch(
		m.toast(notify.Info, "Opening Spotify authorization in your browser"),
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
			defer cancel()
			return connectMsg{err: ctrl.Authenticate(ctx, clientID)}
		},
	)
}

// runHotkey performs a global hotkey action.
func (m Model) runHotkey(action string) tea.Cmd {
	switch action {
	case hotkeys.ToggleOverlay:
		m.forwardCommand(bridge.ActionToggleEditMode)
		return nil
	case hotkeys.PlayPause:
		return m.do("toggle playback", Controller.TogglePlay)
	case hotkeys.NextTrack:
		return m.do("skip track", Controller.Next)
	case hotkeys.PrevTrack:
		return m.do("go to previous track", Controller.Previous)
	case hotkeys.VolumeUp:
		return m.do("set volume", Controller.VolumeUp)
	case hotkeys.VolumeDown:
		return m.do("set volume", Controller.VolumeDown)
	}
	log.Debugw("unknown hotkey action", "action", action)
	return nil
}

func (m *Model) registerHotkeys() noticeMsg {
	res := m.hotkeys.Register(hotkeys.AcceleratorMap(m.prefs.Hotkeys))
	sev := notify.Info
	if len(res.Failed) > 0 {
		sev = notify.Warning
	}
	return noticeMsg{severity: sev, text: res.Summary()}
}

func (m *Model) toggleGlobalHotkeys() tea.Cmd {
	if m.hotkeys == nil {
		return nil
	}
	m.prefs.GlobalHotkeys = !m.prefs.GlobalHotkeys
	m.savePrefs()
	if !m.prefs.GlobalHotkeys {
		m.hotkeys.UnregisterAll()
		return m.toast(notify.Info, "Global hotkeys disabled")
	}
	n := m.registerHotkeys()
	return m.toast(n.severity, n.text)
}

func (m Model) forwardCommand(action string) {
	if m.bridge == nil {
		return
	}
	msg, err := bridge.Command(action, nil)
	if err != nil {
		log.Warnw("build bridge command", "action", action, "error", err)
		return
	}
	m.bridge.Forward(msg)
}

func (m *Model) adjustOpacity(delta int) {
	m.prefs.Opacity = prefs.ClampOpacity(m.prefs.Opacity + delta)
	m.savePrefs()
	if m.bridge == nil {
		return
	}
	msg, err := bridge.SetOpacity(m.prefs.Opacity)
	if err != nil {
		log.Warnw("build opacity command", "error", err)
		return
	}
	m.bridge.Forward(msg)
}

// applyPrefs takes settings edited outside the panel.
func (m *Model) applyPrefs(p prefs.Prefs) {
	if p.Theme != "" && p.Theme != m.theme.Name {
		m.theme = theme.Get(p.Theme)
		m.logs.dirty = true
		m.updateLogViewport()
	}
	if m.hotkeys != nil && p.GlobalHotkeys != m.prefs.GlobalHotkeys {
		if p.GlobalHotkeys {
			m.hotkeys.Register(hotkeys.AcceleratorMap(p.Hotkeys))
		} else {
			m.hotkeys.UnregisterAll()
		}
	}
	if m.notifier != nil {
		m.notifier.SetMuted(!p.ShowNotifications)
		m.notifier.SetDuration(time.Duration(p.ToastDurationMS) * time.Millisecond)
	}
	m.prefs = p
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		log.Warnw("save prefs", "path", m.prefsPath, "error", err)
	}
}

// handleTick re-reads the store and, in a following logs view, the log file.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs && m.logs.follow && m.now().Sub(m.logs.lastRefresh) >= LogRefreshInterval {
		cmds = append(cmds, m.refreshLogs())
	}
	cmds = append(cmds, tickCmd(m.tick))
	return m, tea.Batch(cmds...)
}

func (m Model) refresh() tea.Cmd {
	if m.store == nil {
		return nil
	}
	return fetchSnapshotCmd(m.store)
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

// PrefsMsg delivers settings reloaded from disk.
type PrefsMsg prefs.Prefs

type actionMsg struct {
	action string
	err    error
}

type searchMsg struct {
	query string
	err   error
}

type deviceMsg struct {
	device state.Device
	err    error
}

type connectMsg struct {
	err error
}

type noticeMsg struct {
	severity notify.Severity
	text     string
}

type dismissMsg struct {
	id string
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func noticeCmd(n noticeMsg) tea.Cmd {
	return func() tea.Msg { return n }
}

func dismissCmd(t notify.Toast) tea.Cmd {
	return tea.Tick(t.Duration, func(time.Time) tea.Msg {
		return dismissMsg{id: t.ID}
	})
}

// Run starts the control panel and blocks until it exits or ctx is
// cancelled. attach, when set, receives the program's Send before it starts
// so background producers can push messages such as PrefsMsg.
func Run(ctx context.Context, opts Options, attach func(send func(tea.Msg))) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if attach != nil {
		attach(p.Send)
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
