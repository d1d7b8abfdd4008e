package overlay

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/five82/flyover/internal/bridge"
	"github.com/five82/flyover/internal/display"
	"github.com/five82/flyover/internal/marquee"
	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/prefs"
	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/storage"
	"github.com/five82/flyover/internal/theme"
)

// Widget sizes in cells.
const (
	nowPlayingWidth = 36
	upNextWidth     = 40
	toastWidth      = 36
	toastLimit      = 4
)

const (
	frameInterval   = 125 * time.Millisecond
	refreshInterval = time.Second
)

// MarqueeConfig is the title scroller tuned for terminal cells.
func MarqueeConfig() marquee.Config {
	return marquee.Config{
		Tolerance:  8,
		Speed:      4,
		StartDelay: 2 * time.Second,
		Pause:      2 * time.Second,
	}
}

// Options configures the overlay model.
type Options struct {
	Store *state.Store // fed by bridge messages; a fresh store when nil
	KV    storage.KV   // layout and visibility persistence
	Prefs prefs.Prefs
	Now   func() time.Time
}

// Model is the overlay's Bubble Tea state.
type Model struct {
	store  *state.Store
	comp   *Compositor
	snap   state.Snapshot
	toasts *notify.Stack

	title       *marquee.Machine
	titleText   string
	scrollToken uint64

	theme   theme.Theme
	opacity int

	width  int
	height int
	now    func() time.Time
}

// PrefsMsg carries reloaded preferences into the program.
type PrefsMsg prefs.Prefs

type (
	refreshMsg time.Time
	marqueeMsg struct{ token uint64 }
	frameMsg   struct{ token uint64 }
	dismissMsg struct{ id string }
)

// New builds the overlay model.
func New(opts Options) Model {
	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}

	comp := NewCompositor(opts.KV)
	comp.SetOrigin(p.Position.X, p.Position.Y)
	m := Model{
		store:   store,
		comp:    comp,
		snap:    store.Snapshot(),
		toasts:  notify.NewStack(toastLimit),
		title:   marquee.New(MarqueeConfig()),
		theme:   theme.Get(p.Theme),
		opacity: prefs.ClampOpacity(p.Opacity),
		now:     now,
	}
	m.titleText = m.currentTitle()
	return m
}

// Compositor exposes the layout state.
func (m Model) Compositor() *Compositor { return m.comp }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(refreshInterval), tea.DisableMouse)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		cmd := m.resetMarquee()
		return m, cmd

	case bridge.Message:
		return m.handleBridge(msg)

	case PrefsMsg:
		p := prefs.Prefs(msg)
		m.theme = theme.Get(p.Theme)
		m.opacity = prefs.ClampOpacity(p.Opacity)
		m.comp.SetOrigin(p.Position.X, p.Position.Y)
		return m, nil

	case refreshMsg:
		return m, refreshCmd(refreshInterval)

	case marqueeMsg:
		timer, ok := m.title.Fire(msg.token, m.now())
		if !ok {
			return m, nil
		}
		cmds := []tea.Cmd{marqueeCmd(timer)}
		if m.title.Phase() == marquee.Scrolling {
			m.scrollToken = timer.Token
			cmds = append(cmds, frameCmd(timer.Token))
		}
		return m, tea.Batch(cmds...)

	case frameMsg:
		if msg.token != m.scrollToken || m.title.Phase() != marquee.Scrolling {
			return m, nil
		}
		return m, frameCmd(msg.token)

	case dismissMsg:
		m.toasts.Dismiss(msg.id)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.title.Stop()
		return m, tea.Quit
	case "e":
		return m, m.command(bridge.ActionToggleEditMode)
	case "esc":
		return m, m.command(bridge.ActionExitEditMode)
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.comp.Editing() {
		return m, nil
	}
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft {
			m.comp.Press(msg.X, msg.Y)
		}
	case tea.MouseActionMotion:
		m.comp.Motion(msg.X, msg.Y)
	case tea.MouseActionRelease:
		m.comp.Release()
	}
	return m, nil
}

func (m Model) handleBridge(msg bridge.Message) (tea.Model, tea.Cmd) {
	if err := msg.Validate(); err != nil {
		log.Warnw("dropping bridge message", "error", err)
		return m, nil
	}
	if msg.Kind == bridge.KindStateChange {
		ev, err := msg.Event()
		if err == nil {
			err = m.store.Apply(ev)
		}
		if err != nil {
			log.Warnw("dropping state change", "kind", msg.StateKind, "error", err)
			return m, nil
		}
		m.snap = m.store.Snapshot()
		if title := m.currentTitle(); title != m.titleText {
			m.titleText = title
			cmd := m.resetMarquee()
			return m, cmd
		}
		return m, nil
	}

	switch msg.Action {
	case bridge.ActionMirrorToast:
		t, err := msg.Toast()
		if err != nil {
			log.Warnw("dropping toast", "error", err)
			return m, nil
		}
		if t.Duration <= 0 {
			t.Duration = notify.DefaultDuration
		}
		m.toasts.Push(t)
		return m, dismissCmd(t.ID, t.Duration)
	case bridge.ActionSetOpacity:
		v, err := msg.Opacity()
		if err != nil {
			log.Warnw("dropping opacity", "error", err)
			return m, nil
		}
		m.opacity = prefs.ClampOpacity(v)
		return m, nil
	default:
		return m, m.command(msg.Action)
	}
}

// command applies an edit-mode action and returns the mouse mode change.
func (m Model) command(action string) tea.Cmd {
	if !m.comp.Command(action) {
		return nil
	}
	if m.comp.Editing() {
		return tea.EnableMouseCellMotion
	}
	return tea.DisableMouse
}

func (m *Model) resetMarquee() tea.Cmd {
	container := m.titleWidth()
	timer, ok := m.title.Reset(float64(ansi.StringWidth(m.titleText)), float64(container))
	m.scrollToken = 0
	if !ok {
		return nil
	}
	return marqueeCmd(timer)
}

func (m Model) currentTitle() string {
	if m.snap.Track == nil {
		return "Not Playing"
	}
	title := display.NormalizeTitle(m.snap.Track.Title)
	if title == "" {
		return "Unknown Track"
	}
	return title
}

// titleWidth is the cell width available to the title inside now-playing.
func (m Model) titleWidth() int {
	return nowPlayingWidth - 4 // padding plus the note glyph
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	now := m.now()
	var blocks []block

	for _, id := range Widgets {
		content, ok := m.renderWidget(id, now)
		if !ok {
			m.comp.Forget(id)
			continue
		}
		r := m.comp.Place(id, lipgloss.Width(content), lipgloss.Height(content), m.width, m.height)
		blocks = append(blocks, block{x: r.X, y: r.Y, lines: strings.Split(content, "\n")})
	}
	return compose(m.width, m.height, blocks)
}

func (m Model) renderWidget(id WidgetID, now time.Time) (string, bool) {
	switch id {
	case NowPlaying:
		if !m.comp.Shown(NowPlaying) {
			return "", false
		}
		return m.renderNowPlaying(now), true
	case UpNext:
		if !m.comp.UpNextShown(m.snap, m.snap.PositionAt(now)) {
			return "", false
		}
		return m.renderUpNext(), true
	case Toasts:
		if !m.comp.Shown(Toasts) || (m.toasts.Len() == 0 && !m.comp.Editing()) {
			return "", false
		}
		return m.renderToasts(), true
	}
	return "", false
}

func (m Model) widgetStyle(width int) lipgloss.Style {
	s := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Text)).
		Padding(0, 1).
		Width(width)
	if bg, ok := m.theme.WidgetBackground(m.opacity); ok {
		s = s.Background(bg)
	}
	return s
}

// editHeader is the drag handle row shown in edit mode; its last cells are
// the visibility toggle.
func (m Model) editHeader(id WidgetID, label string, width int) string {
	mark := "[ ]"
	if m.comp.Persisted(id) {
		mark = "[x]"
	}
	inner := width - 2
	gap := max(1, inner-ansi.StringWidth(label)-ansi.StringWidth(mark))
	styles := m.theme.Styles()
	return styles.AccentText.Render(label) + strings.Repeat(" ", gap) + styles.WarningText.Render(mark)
}

func (m Model) renderNowPlaying(now time.Time) string {
	styles := m.theme.Styles()
	var lines []string
	if m.comp.Editing() {
		lines = append(lines, m.editHeader(NowPlaying, "⠿ Now Playing", nowPlayingWidth))
	}

	title := m.titleText
	width := m.titleWidth()
	switch m.title.Phase() {
	case marquee.Scrolling, marquee.PausedBetweenCycles:
		off := int(m.title.Offset(now))
		title = ansi.Cut(title, off, off+width)
	default:
		title = ansi.Truncate(title, width, "…")
	}
	lines = append(lines, styles.Text.Bold(true).Render("♪ "+title))

	artist := "Connect to Spotify"
	if m.snap.Track != nil {
		artist = display.NormalizeArtists(m.snap.Track.Artists)
	}
	lines = append(lines, styles.MutedText.Render("  "+ansi.Truncate(artist, width, "…")))
	return m.widgetStyle(nowPlayingWidth).Render(strings.Join(lines, "\n"))
}

func (m Model) renderUpNext() string {
	styles := m.theme.Styles()
	var lines []string
	if m.comp.Editing() {
		lines = append(lines, m.editHeader(UpNext, "⠿ Up Next", upNextWidth))
	} else {
		lines = append(lines, styles.AccentText.Bold(true).Render("Up Next"))
	}

	if len(m.snap.Queue) == 0 {
		lines = append(lines, styles.FaintText.Render("No songs in queue"))
	}
	for i, t := range m.snap.Queue {
		if i == UpNextItems {
			break
		}
		lines = append(lines, styles.Text.Render(ansi.Truncate(display.TrackLine(t), upNextWidth-2, "…")))
	}
	return m.widgetStyle(upNextWidth).Render(strings.Join(lines, "\n"))
}

func (m Model) renderToasts() string {
	styles := m.theme.Styles()
	var lines []string
	if m.comp.Editing() {
		lines = append(lines, m.editHeader(Toasts, "⠿ Toasts", toastWidth))
		if m.toasts.Len() == 0 {
			lines = append(lines, styles.FaintText.Render("Notifications appear here"))
		}
	}
	for _, t := range m.toasts.Items() {
		bar := lipgloss.NewStyle().Foreground(styles.SeverityColor(t.Severity)).Render("▌")
		lines = append(lines, bar+" "+styles.Text.Render(ansi.Truncate(t.Message, toastWidth-4, "…")))
	}
	return m.widgetStyle(toastWidth).Render(strings.Join(lines, "\n"))
}

type block struct {
	x, y  int
	lines []string
}

type segment struct {
	x    int
	text string
}

// compose lays blocks onto a blank width×height canvas. Where blocks
// overlap on a row, the one starting further left wins.
func compose(width, height int, blocks []block) string {
	rows := make([][]segment, height)
	for _, b := range blocks {
		for i, line := range b.lines {
			y := b.y + i
			if y < 0 || y >= height || b.x >= width {
				continue
			}
			rows[y] = append(rows[y], segment{x: b.x, text: line})
		}
	}

	out := make([]string, height)
	for y, segs := range rows {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].x < segs[j].x })
		var sb strings.Builder
		cursor := 0
		for _, s := range segs {
			text := s.text
			x := s.x
			if x < cursor {
				text = ansi.TruncateLeft(text, cursor-x, "")
				x = cursor
			}
			if x >= width {
				break
			}
			sb.WriteString(strings.Repeat(" ", x-cursor))
			text = ansi.Truncate(text, width-x, "")
			sb.WriteString(text)
			cursor = x + ansi.StringWidth(text)
		}
		out[y] = sb.String()
	}
	return strings.Join(out, "\n")
}

func refreshCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func marqueeCmd(t marquee.Timer) tea.Cmd {
	return tea.Tick(t.After, func(time.Time) tea.Msg { return marqueeMsg{token: t.Token} })
}

func frameCmd(token uint64) tea.Cmd {
	return tea.Tick(frameInterval, func(time.Time) tea.Msg { return frameMsg{token: token} })
}

func dismissCmd(id string, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return dismissMsg{id: id} })
}

// Run starts the overlay program and feeds it bridge messages and preference
// reloads until ctx is cancelled or the user quits.
func Run(ctx context.Context, opts Options, attach func(send func(tea.Msg))) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if attach != nil {
		attach(p.Send)
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
