package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/five82/flyover/internal/state"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	seeks []int
	modes []state.RepeatMode
	err   error
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Play(context.Context) error       { return f.record("play") }
func (f *fakeController) Pause(context.Context) error      { return f.record("pause") }
func (f *fakeController) TogglePlay(context.Context) error { return f.record("toggle") }
func (f *fakeController) Next(context.Context) error       { return f.record("next") }
func (f *fakeController) Previous(context.Context) error   { return f.record("previous") }
func (f *fakeController) Seek(_ context.Context, ms int) error {
	f.seeks = append(f.seeks, ms)
	return f.record("seek")
}
func (f *fakeController) SetShuffle(context.Context, bool) error { return f.record("shuffle") }
func (f *fakeController) SetRepeat(_ context.Context, mode state.RepeatMode) error {
	f.modes = append(f.modes, mode)
	return f.record("repeat")
}

type signal struct {
	name   string
	values []any
}

type signalLog struct {
	mu  sync.Mutex
	got []signal
}

func (l *signalLog) emit(name string, values ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, signal{name: name, values: values})
	return nil
}

func (l *signalLog) take() []signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.got
	l.got = nil
	return out
}

func TestLoopStatusMapping(t *testing.T) {
	for _, mode := range []state.RepeatMode{state.RepeatOff, state.RepeatContext, state.RepeatTrack} {
		got, ok := RepeatFor(LoopStatusFor(mode))
		if !ok || got != mode {
			t.Errorf("RepeatFor(LoopStatusFor(%q)) = %q, %v", mode, got, ok)
		}
	}
	if got := LoopStatusFor(state.RepeatContext); got != LoopPlaylist {
		t.Fatalf("LoopStatusFor(context) = %q, want Playlist", got)
	}
	if _, ok := RepeatFor("Shuffle"); ok {
		t.Fatal("RepeatFor accepted an unknown status")
	}
}

func TestPlaybackStatus(t *testing.T) {
	track := &state.Track{ID: "a"}
	tests := []struct {
		snap state.Snapshot
		want string
	}{
		{state.Snapshot{}, "Stopped"},
		{state.Snapshot{Track: track, IsPlaying: true}, "Playing"},
		{state.Snapshot{Track: track}, "Paused"},
	}
	for _, tt := range tests {
		if got := PlaybackStatus(tt.snap); got != tt.want {
			t.Errorf("PlaybackStatus(%+v) = %q, want %q", tt.snap, got, tt.want)
		}
	}
}

func TestTrackPath(t *testing.T) {
	if got := TrackPath(nil); got != noTrackPath {
		t.Fatalf("TrackPath(nil) = %q, want %q", got, noTrackPath)
	}
	got := TrackPath(&state.Track{ID: "4u-Id.x"})
	if got != "/org/five82/flyover/track/4u_Id_x" {
		t.Fatalf("TrackPath = %q", got)
	}
	if !got.IsValid() {
		t.Fatalf("TrackPath %q is not a valid object path", got)
	}
}

func TestMetadata(t *testing.T) {
	m := Metadata(&state.Track{
		ID:         "t1",
		Title:      "Next Song (Live)",
		Artists:    []string{"A", "B"},
		Album:      "Record",
		Images:     []string{"https://img/large"},
		DurationMs: 2500,
	})
	if got := m["xesam:title"].Value(); got != "Next Song" {
		t.Errorf("title = %v, want Next Song", got)
	}
	if got := m["mpris:length"].Value(); got != int64(2500000) {
		t.Errorf("length = %v, want 2500000", got)
	}
	if got := m["xesam:artist"].Value().([]string); len(got) != 2 {
		t.Errorf("artists = %v", got)
	}
	if got := m["mpris:artUrl"].Value(); got != "https://img/large" {
		t.Errorf("artUrl = %v", got)
	}
	if empty := Metadata(nil); len(empty) != 1 {
		t.Errorf("Metadata(nil) = %v, want only a trackid", empty)
	}
}

func TestPlayer_MirrorsOnlyChangedProperties(t *testing.T) {
	store := &state.Store{}
	p := newPlayer(&fakeController{})
	signals := &signalLog{}
	p.emit = signals.emit
	unsubscribe := mirror(store, p)
	defer unsubscribe()
	signals.take()

	store.SetConnection(state.Connection{Connected: true})
	got := signals.take()
	if len(got) != 1 || got[0].name != propertiesInterface+".PropertiesChanged" {
		t.Fatalf("signals = %+v, want one PropertiesChanged", got)
	}
	changed := got[0].values[1].(map[string]dbus.Variant)
	if _, ok := changed["CanPlay"]; !ok {
		t.Fatalf("changed = %v, want CanPlay", changed)
	}
	if _, ok := changed["Metadata"]; ok {
		t.Fatal("Metadata announced without a track change")
	}

	store.SetConnection(state.Connection{Connected: true})
	if got := signals.take(); len(got) != 0 {
		t.Fatalf("repeat update emitted %+v", got)
	}

	store.SetQueue([]state.Track{{ID: "q"}})
	if got := signals.take(); len(got) != 0 {
		t.Fatalf("queue update emitted %+v", got)
	}

	track := &state.Track{ID: "t1", Title: "Song", DurationMs: 60000}
	store.SetTrack(track)
	store.SetPlayback(&state.PlaybackState{Track: track, IsPlaying: true, Repeat: state.RepeatTrack})
	var status, loop any
	for _, s := range signals.take() {
		if props, ok := s.values[1].(map[string]dbus.Variant); ok {
			if v, ok := props["PlaybackStatus"]; ok {
				status = v.Value()
			}
			if v, ok := props["LoopStatus"]; ok {
				loop = v.Value()
			}
		}
	}
	if status != "Playing" || loop != "Track" {
		t.Fatalf("status = %v loop = %v, want Playing and Track", status, loop)
	}
}

func TestPlayer_SeekedOnlyOnJump(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	track := &state.Track{ID: "t1", DurationMs: 200000}
	at := func(pos int, offset time.Duration) state.Snapshot {
		pb := &state.PlaybackState{Track: track, IsPlaying: true, PositionMs: pos, SyncedAt: base.Add(offset)}
		return state.Snapshot{Track: track, Playback: pb, IsPlaying: true, PositionMs: pos, DurationMs: track.DurationMs}
	}

	p := newPlayer(&fakeController{})
	signals := &signalLog{}
	p.emit = signals.emit
	p.Update(at(10000, 0))
	signals.take()

	p.Update(at(11000, time.Second))
	for _, s := range signals.take() {
		if s.name == mprisPlayerInterface+".Seeked" {
			t.Fatal("steady playback reported a seek")
		}
	}

	p.Update(at(90000, 2*time.Second))
	var seeked bool
	for _, s := range signals.take() {
		if s.name == mprisPlayerInterface+".Seeked" {
			seeked = true
			if s.values[0] != int64(90000000) {
				t.Fatalf("Seeked position = %v, want 90000000", s.values[0])
			}
		}
	}
	if !seeked {
		t.Fatal("jump was not reported as a seek")
	}
}

func TestPlayer_MediaKeysReachController(t *testing.T) {
	ctrl := &fakeController{}
	p := newPlayer(ctrl)
	track := &state.Track{ID: "t1", DurationMs: 10000}
	p.Update(state.Snapshot{
		Track:      track,
		Playback:   &state.PlaybackState{Track: track, PositionMs: 4000},
		PositionMs: 4000,
		DurationMs: 10000,
	})

	p.Play()
	p.PlayPause()
	p.Previous()
	p.Seek(2_000_000)  // +2s
	p.Seek(-9_000_000) // clamps to 0
	p.Seek(7_000_000)  // past the end
	p.SetPosition("/wrong", 1000)
	p.SetPosition(TrackPath(track), 20_000_000_000)
	p.SetPosition(TrackPath(track), 3_000_000)
	if err := p.Set(mprisPlayerInterface, "LoopStatus", dbus.MakeVariant("Playlist")); err != nil {
		t.Fatalf("Set LoopStatus: %v", err)
	}
	if err := p.Set(mprisPlayerInterface, "LoopStatus", dbus.MakeVariant("Sideways")); err == nil {
		t.Fatal("Set accepted an invalid LoopStatus")
	}

	want := []string{"play", "toggle", "previous", "seek", "seek", "next", "seek", "repeat"}
	if len(ctrl.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ctrl.calls, want)
	}
	for i := range want {
		if ctrl.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", ctrl.calls, want)
		}
	}
	wantSeeks := []int{6000, 0, 3000}
	for i := range wantSeeks {
		if ctrl.seeks[i] != wantSeeks[i] {
			t.Fatalf("seeks = %v, want %v", ctrl.seeks, wantSeeks)
		}
	}
	if ctrl.modes[0] != state.RepeatContext {
		t.Fatalf("repeat = %q, want context", ctrl.modes[0])
	}
}

func TestPlayer_ControllerFailureIsDBusError(t *testing.T) {
	p := newPlayer(&fakeController{err: errors.New("no device")})
	if err := p.Next(); err == nil {
		t.Fatal("Next = nil, want a D-Bus error")
	}
}

func TestPlayer_Properties(t *testing.T) {
	p := newPlayer(&fakeController{})
	v, err := p.Get(mprisInterface, "Identity")
	if err != nil || v.Value() != "flyover" {
		t.Fatalf("Identity = %v, %v", v, err)
	}
	if _, err := p.Get(mprisPlayerInterface, "Bogus"); err == nil {
		t.Fatal("Get of an unknown property succeeded")
	}
	all, err := p.GetAll(mprisPlayerInterface)
	if err != nil || all["PlaybackStatus"].Value() != "Stopped" {
		t.Fatalf("GetAll = %v, %v", all, err)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	calls := 0
	s := &Session{unsubscribe: func() { calls++ }}
	_ = s.Close()
	_ = s.Close()
	if calls != 1 {
		t.Fatalf("unsubscribe calls = %d, want 1", calls)
	}
	var nilSession *Session
	if err := nilSession.Close(); err != nil {
		t.Fatalf("nil Close = %v", err)
	}
}
