package overlay

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/flyover/internal/bridge"
	"github.com/five82/flyover/internal/marquee"
	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/prefs"
	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/storage"
)

func TestUpNextVisible(t *testing.T) {
	tests := []struct {
		name     string
		editing  bool
		visible  bool
		queue    int
		duration int
		position int
		playing  bool
		want     bool
	}{
		{"exactly at threshold", false, true, 1, 20000, 10000, true, true},
		{"one ms before threshold", false, true, 1, 20000, 9999, true, false},
		{"near end", false, true, 3, 10000, 9000, true, true},
		{"early", false, true, 3, 10000, 500, true, true},
		{"long track early", false, true, 3, 200000, 500, true, false},
		{"paused", false, true, 3, 10000, 9000, false, false},
		{"empty queue", false, true, 0, 10000, 9000, true, false},
		{"unknown duration", false, true, 3, 0, 0, true, false},
		{"hidden by user", false, false, 3, 10000, 9000, true, false},
		{"editing forces", true, false, 0, 0, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpNextVisible(tt.editing, tt.visible, tt.queue, tt.duration, tt.position, tt.playing)
			if got != tt.want {
				t.Fatalf("UpNextVisible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompositor_EditModeCommandsAreIdempotent(t *testing.T) {
	c := NewCompositor(storage.NewMemory())
	if c.Command(bridge.ActionExitEditMode) {
		t.Fatal("exit while locked reported a change")
	}
	if !c.Command(bridge.ActionEnterEditMode) || !c.Editing() {
		t.Fatal("enter did not start editing")
	}
	if c.Command(bridge.ActionEnterEditMode) {
		t.Fatal("second enter reported a change")
	}
	c.Command(bridge.ActionToggleEditMode)
	if c.Editing() {
		t.Fatal("toggle did not leave edit mode")
	}
	if c.Command("bogus") {
		t.Fatal("unknown action reported a change")
	}
}

func TestCompositor_DragClampsAndPersists(t *testing.T) {
	kv := storage.NewMemory()
	c := NewCompositor(kv)
	c.EnterEdit()
	r := c.Place(NowPlaying, 20, 3, 80, 24)
	if r.X != 2 || r.Y != 1 {
		t.Fatalf("default position = %+v, want {2 1}", r)
	}

	if c.Press(r.X+5, r.Y+1) == false {
		t.Fatal("press on widget body missed")
	}
	c.Motion(30, 10)
	if got := c.Position(NowPlaying); got.X != 25 || got.Y != 9 {
		t.Fatalf("after motion = %+v, want {25 9}", got)
	}
	c.Motion(1, 0)
	if got := c.Position(NowPlaying); got.X != 0 || got.Y != 0 {
		t.Fatalf("after motion past the edge = %+v, want {0 0}", got)
	}
	c.Release()

	reopened := NewCompositor(kv)
	if got := reopened.Position(NowPlaying); got.X != 0 || got.Y != 0 || got.Anchor != AnchorTopLeft {
		t.Fatalf("persisted = %+v, want {0 0}", got)
	}
}

func TestCompositor_PressIgnoredWhenLocked(t *testing.T) {
	c := NewCompositor(storage.NewMemory())
	r := c.Place(NowPlaying, 20, 3, 80, 24)
	if c.Press(r.X+1, r.Y+1) {
		t.Fatal("press handled outside edit mode")
	}
	if _, ok := c.Dragging(); ok {
		t.Fatal("drag started outside edit mode")
	}
}

func TestCompositor_BottomRightAnchor(t *testing.T) {
	c := NewCompositor(nil)
	r := c.Place(Toasts, 10, 2, 80, 24)
	if r.X != 68 || r.Y != 21 {
		t.Fatalf("toasts = %+v, want x=68 y=21", r)
	}
}

func TestCompositor_VisibilityToggleSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := NewCompositor(db)
	c.EnterEdit()
	r := c.Place(UpNext, 20, 4, 80, 24)
	if !c.Press(r.X+r.W-1, r.Y) {
		t.Fatal("press on toggle missed")
	}
	if _, dragging := c.Dragging(); dragging {
		t.Fatal("toggle press started a drag")
	}
	c.ExitEdit()
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	reopened := NewCompositor(db)
	if reopened.Persisted(UpNext) {
		t.Fatal("up-next visibility not persisted")
	}
	if !reopened.Persisted(NowPlaying) {
		t.Fatal("untouched widget lost its visibility")
	}
	snap := state.Snapshot{Queue: []state.Track{{Title: "x"}}, DurationMs: 10000, IsPlaying: true}
	if reopened.UpNextShown(snap, 9500) {
		t.Fatal("hidden up-next shown while locked")
	}
	reopened.EnterEdit()
	if !reopened.UpNextShown(snap, 0) {
		t.Fatal("up-next not forced while editing")
	}
}

func TestCompositor_MalformedLayoutFallsBack(t *testing.T) {
	kv := storage.NewMemory()
	_ = kv.Set(storage.KeyLayout, "{not json")
	_ = kv.Set(storage.KeyVisibility, `{"upNext": false}`)
	c := NewCompositor(kv)
	if got := c.Position(UpNext); got != DefaultLayout()[UpNext] {
		t.Fatalf("Position = %+v, want default", got)
	}
	if c.Persisted(UpNext) || !c.Persisted(Toasts) {
		t.Fatal("visibility not merged over defaults")
	}
}

func stateChange(t *testing.T, kind state.Kind, payload any) bridge.Message {
	t.Helper()
	msg, err := bridge.StateChange(state.Event{Kind: kind, Payload: payload})
	if err != nil {
		t.Fatalf("StateChange: %v", err)
	}
	return msg
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	m := New(Options{KV: storage.NewMemory(), Prefs: prefs.Defaults()})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func playing(pos, duration int) *state.PlaybackState {
	return &state.PlaybackState{
		Track:      &state.Track{ID: "t1", Title: "Current (Remastered)", Artists: []string{"Band"}, DurationMs: duration},
		IsPlaying:  true,
		PositionMs: pos,
	}
}

func TestModel_UpNextScenario(t *testing.T) {
	m := newTestModel(t)
	m, _ = send(t, m, stateChange(t, state.KindQueue, []state.Track{{ID: "n1", Title: "Next Song (Live)", Artists: []string{"Artist"}}}))
	m, _ = send(t, m, stateChange(t, state.KindPlayback, playing(9000, 10000)))

	view := m.View()
	if !strings.Contains(view, "Up Next") || !strings.Contains(view, "Next Song - Artist") {
		t.Fatalf("view near the end lacks up-next:\n%s", view)
	}
	if strings.Contains(view, "(Live)") {
		t.Fatalf("title not normalized:\n%s", view)
	}

	// The window is a fixed 10s, so "early" needs a track longer than it.
	m, _ = send(t, m, stateChange(t, state.KindPlayback, playing(500, 30000)))
	if view := m.View(); strings.Contains(view, "Up Next") {
		t.Fatalf("up-next shown early in the track:\n%s", view)
	}

	paused := playing(9000, 10000)
	paused.IsPlaying = false
	m, _ = send(t, m, stateChange(t, state.KindPlayback, paused))
	if view := m.View(); strings.Contains(view, "Up Next") {
		t.Fatalf("up-next shown while paused:\n%s", view)
	}
}

func TestModel_NowPlayingPlaceholders(t *testing.T) {
	m := newTestModel(t)
	view := m.View()
	if !strings.Contains(view, "Not Playing") || !strings.Contains(view, "Connect to Spotify") {
		t.Fatalf("placeholder missing:\n%s", view)
	}

	m, _ = send(t, m, stateChange(t, state.KindTrack, &state.Track{ID: "t", Title: "Song (feat. A (Remix))", Artists: []string{"Band (US)"}}))
	view = m.View()
	if !strings.Contains(view, "Song") || strings.Contains(view, "Remix") || !strings.Contains(view, "Band") {
		t.Fatalf("track not rendered normalized:\n%s", view)
	}
}

func TestModel_EditCommandsToggleMouseCapture(t *testing.T) {
	m := newTestModel(t)
	enter, _ := bridge.Command(bridge.ActionEnterEditMode, nil)
	m, cmd := send(t, m, enter)
	if !m.Compositor().Editing() || cmd == nil {
		t.Fatal("enter command did not start editing with mouse capture")
	}
	if view := m.View(); !strings.Contains(view, "Up Next") || !strings.Contains(view, "No songs in queue") {
		t.Fatalf("edit mode should force up-next:\n%s", view)
	}
	m, cmd = send(t, m, enter)
	if cmd != nil {
		t.Fatal("repeated enter changed mouse mode")
	}
	m, cmd = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.Compositor().Editing() || cmd == nil {
		t.Fatal("esc did not leave edit mode")
	}
}

func TestModel_MirroredToastDismissesIndependently(t *testing.T) {
	m := newTestModel(t)
	toast := notify.New(notify.Error, "Failed to skip track", 50*time.Millisecond)
	msg, err := bridge.MirrorToast(toast)
	if err != nil {
		t.Fatalf("MirrorToast: %v", err)
	}
	m, cmd := send(t, m, msg)
	if cmd == nil {
		t.Fatal("no dismiss timer scheduled")
	}
	if !strings.Contains(m.View(), "Failed to skip track") {
		t.Fatal("mirrored toast not rendered")
	}
	m, _ = send(t, m, cmd())
	if strings.Contains(m.View(), "Failed to skip track") {
		t.Fatal("toast survived its dismiss timer")
	}
}

func TestModel_SetOpacityClamps(t *testing.T) {
	m := newTestModel(t)
	msg, _ := bridge.SetOpacity(140)
	m, _ = send(t, m, msg)
	if m.opacity != 100 {
		t.Fatalf("opacity = %d, want 100", m.opacity)
	}
	m, _ = send(t, m, PrefsMsg(prefs.Prefs{Theme: "Slate", Opacity: 40}))
	if m.opacity != 40 || m.theme.Name != "Slate" {
		t.Fatalf("prefs reload = %d %q", m.opacity, m.theme.Name)
	}
}

func TestModel_LongTitleSchedulesMarquee(t *testing.T) {
	m := newTestModel(t)
	long := strings.Repeat("Very Long Title ", 4)
	m, cmd := send(t, m, stateChange(t, state.KindTrack, &state.Track{ID: "t", Title: long}))
	if cmd == nil || m.title.Phase() != marquee.ScheduledStart {
		t.Fatalf("phase = %v, want scheduled", m.title.Phase())
	}
	m, _ = send(t, m, stateChange(t, state.KindTrack, &state.Track{ID: "u", Title: "Short"}))
	if m.title.Phase() != marquee.Idle {
		t.Fatalf("phase = %v, want idle", m.title.Phase())
	}
}

func TestModel_MarqueeToleranceInCells(t *testing.T) {
	m := newTestModel(t)
	width := m.titleWidth()

	m, _ = send(t, m, stateChange(t, state.KindTrack, &state.Track{ID: "a", Title: strings.Repeat("a", width+8)}))
	if m.title.Phase() != marquee.Idle {
		t.Fatalf("phase at 8 cells over = %v, want idle", m.title.Phase())
	}
	m, _ = send(t, m, stateChange(t, state.KindTrack, &state.Track{ID: "b", Title: strings.Repeat("b", width+9)}))
	if m.title.Phase() != marquee.ScheduledStart {
		t.Fatalf("phase at 9 cells over = %v, want scheduled", m.title.Phase())
	}
}

func TestCompose_PlacesAndClipsBlocks(t *testing.T) {
	out := compose(10, 2, []block{
		{x: 2, y: 0, lines: []string{"abc"}},
		{x: 8, y: 1, lines: []string{"wxyz"}},
	})
	lines := strings.Split(out, "\n")
	if len(lines) != 2 || lines[0] != "  abc" || lines[1] != "        wx" {
		t.Fatalf("compose = %q", lines)
	}
}
