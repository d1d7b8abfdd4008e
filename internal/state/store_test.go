package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func sampleTrack(id string, dur int) *Track {
	return &Track{ID: id, Title: "Song " + id, Artists: []string{"A"}, DurationMs: dur}
}

func TestStore_SetPlaybackAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.SetPlayback(&PlaybackState{Track: sampleTrack("1", 200000), IsPlaying: true, PositionMs: 1000})
	s.SetQueue([]Track{*sampleTrack("2", 1000), *sampleTrack("3", 1000)})

	snap := s.Snapshot()
	if !snap.IsPlaying || snap.PositionMs != 1000 || snap.DurationMs != 200000 {
		t.Fatalf("derived = playing %v pos %d dur %d, want true 1000 200000", snap.IsPlaying, snap.PositionMs, snap.DurationMs)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.Playback.Repeat != RepeatOff {
		t.Fatalf("Repeat = %q, want %q", snap.Playback.Repeat, RepeatOff)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Queue[0].ID = "999"
	snap.Playback.Track.Artists[0] = "mutated"
	snap2 := s.Snapshot()
	if snap2.Queue[0].ID != "2" {
		t.Fatalf("Snapshot should clone queue; got id %s want 2", snap2.Queue[0].ID)
	}
	if snap2.Playback.Track.Artists[0] != "A" {
		t.Fatalf("Snapshot should clone track artists; got %q", snap2.Playback.Track.Artists[0])
	}
}

func TestStore_SetterClonesInput(t *testing.T) {
	var s Store
	q := []Track{*sampleTrack("1", 1000)}
	s.SetQueue(q)
	q[0].Title = "changed"
	if got := s.Snapshot().Queue[0].Title; got != "Song 1" {
		t.Fatalf("queue title = %q, want %q", got, "Song 1")
	}
}

func TestStore_ClampsPositionPastDuration(t *testing.T) {
	tests := []struct {
		name    string
		pos     int
		dur     int
		wantPos int
		wantPct float64
	}{
		{"inside", 5000, 10000, 5000, 50},
		{"past end", 15000, 10000, 10000, 100},
		{"negative", -20, 10000, 0, 0},
		{"unknown duration", 4000, 0, 4000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Store
			s.SetPlayback(&PlaybackState{Track: sampleTrack("1", tt.dur), PositionMs: tt.pos})
			snap := s.Snapshot()
			if snap.PositionMs != tt.wantPos {
				t.Fatalf("PositionMs = %d, want %d", snap.PositionMs, tt.wantPos)
			}
			if got := snap.ProgressPercent(); got != tt.wantPct {
				t.Fatalf("ProgressPercent() = %v, want %v", got, tt.wantPct)
			}
		})
	}
}

func TestPercent_AlwaysWithinBounds(t *testing.T) {
	for dur := 0; dur <= 3000; dur += 250 {
		for pos := -500; pos <= 6000; pos += 125 {
			got := Percent(pos, dur)
			if got < 0 || got > 100 {
				t.Fatalf("Percent(%d, %d) = %v, want within [0, 100]", pos, dur, got)
			}
		}
	}
}

func TestSnapshot_PositionAtInterpolatesAndClamps(t *testing.T) {
	synced := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var s Store
	s.SetPlayback(&PlaybackState{Track: sampleTrack("1", 10000), IsPlaying: true, PositionMs: 8000, SyncedAt: synced})
	snap := s.Snapshot()

	if got := snap.PositionAt(synced.Add(1500 * time.Millisecond)); got != 9500 {
		t.Fatalf("PositionAt(+1.5s) = %d, want 9500", got)
	}
	if got := snap.PositionAt(synced.Add(time.Minute)); got != 10000 {
		t.Fatalf("PositionAt(+1m) = %d, want 10000", got)
	}

	s.SetPlayback(&PlaybackState{Track: sampleTrack("1", 10000), IsPlaying: false, PositionMs: 8000, SyncedAt: synced})
	if got := s.Snapshot().PositionAt(synced.Add(time.Minute)); got != 8000 {
		t.Fatalf("paused PositionAt = %d, want 8000", got)
	}
}

func TestStore_EmitsOneEventPerUpdateInSubscriptionOrder(t *testing.T) {
	var s Store
	var order []string
	s.Subscribe(func(ev Event) { order = append(order, "first:"+string(ev.Kind)) })
	s.Subscribe(func(ev Event) { order = append(order, "second:"+string(ev.Kind)) })

	s.SetConnection(Connection{Connected: true})
	s.SetQueue(nil)

	want := []string{"first:connection", "second:connection", "first:queue", "second:queue"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestStore_PanickingSubscriberIsIsolated(t *testing.T) {
	var s Store
	delivered := 0
	s.Subscribe(func(Event) { panic("boom") })
	s.Subscribe(func(Event) { delivered++ })

	s.SetTrack(sampleTrack("1", 1000))
	s.SetTrack(nil)

	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	var s Store
	calls := 0
	unsub := s.Subscribe(func(Event) { calls++ })
	s.SetConnection(Connection{})
	unsub()
	unsub()
	s.SetConnection(Connection{})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestStore_SubscriberCanReadSnapshot(t *testing.T) {
	var s Store
	var seen int
	s.Subscribe(func(ev Event) {
		if ev.Kind == KindQueue {
			seen = len(s.Snapshot().Queue)
		}
	})
	s.SetQueue([]Track{*sampleTrack("1", 1), *sampleTrack("2", 1)})
	if seen != 2 {
		t.Fatalf("queue len seen in subscriber = %d, want 2", seen)
	}
}

func TestStore_RecordFailureKeepsData(t *testing.T) {
	var s Store
	s.SetPlayback(&PlaybackState{Track: sampleTrack("1", 10000), PositionMs: 10})
	s.SetQueue([]Track{*sampleTrack("2", 1)})

	before, _ := json.Marshal(struct {
		P *PlaybackState
		Q []Track
	}{s.Snapshot().Playback, s.Snapshot().Queue})

	origErr := errors.New("boom")
	s.RecordFailure(origErr)
	s.RecordFailure(errors.New("again"))

	snap := s.Snapshot()
	after, _ := json.Marshal(struct {
		P *PlaybackState
		Q []Track
	}{snap.Playback, snap.Queue})
	if string(before) != string(after) {
		t.Fatalf("data changed on failure:\n got %s\nwant %s", after, before)
	}
	if !snap.IsOffline() || snap.ConsecutiveFailures != 2 {
		t.Fatalf("ConsecutiveFailures = %d, want 2 (offline)", snap.ConsecutiveFailures)
	}
	if snap.LastError == nil || snap.LastError.Error() != "again" {
		t.Fatalf("LastError = %v, want again", snap.LastError)
	}

	s.RecordSuccess()
	if snap := s.Snapshot(); snap.IsOffline() || snap.LastError != nil {
		t.Fatalf("after success: failures=%d err=%v", snap.ConsecutiveFailures, snap.LastError)
	}
}

func TestStore_ResetEmitsPerKind(t *testing.T) {
	var s Store
	s.SetPlayback(&PlaybackState{Track: sampleTrack("1", 1000)})
	s.SetQueue([]Track{*sampleTrack("2", 1)})

	var kinds []Kind
	s.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	s.Reset()

	want := []Kind{KindPlayback, KindTrack, KindQueue, KindSearchResults}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	snap := s.Snapshot()
	if snap.Playback != nil || snap.Track != nil || len(snap.Queue) != 0 || snap.IsPlaying {
		t.Fatalf("snapshot not reset: %+v", snap)
	}
}

func TestStore_ApplyRoundTripsThroughJSON(t *testing.T) {
	var src Store
	src.SetConnection(Connection{Connected: true})
	src.SetTrack(sampleTrack("1", 5000))
	src.SetPlayback(&PlaybackState{Track: sampleTrack("1", 5000), IsPlaying: true, PositionMs: 4000, Repeat: RepeatTrack})
	src.SetQueue([]Track{*sampleTrack("2", 100)})

	var dst Store
	for _, ev := range src.Snapshot().ReplayEvents() {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			t.Fatalf("marshal %s: %v", ev.Kind, err)
		}
		payload, err := DecodePayload(ev.Kind, raw)
		if err != nil {
			t.Fatalf("DecodePayload(%s): %v", ev.Kind, err)
		}
		if err := dst.Apply(Event{Kind: ev.Kind, Payload: payload}); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Kind, err)
		}
	}

	got := dst.Snapshot()
	if !got.Connection.Connected || got.Track.ID != "1" || got.PositionMs != 4000 || len(got.Queue) != 1 {
		t.Fatalf("replayed snapshot = %+v", got)
	}
	if got.Playback.Repeat != RepeatTrack {
		t.Fatalf("Repeat = %q, want %q", got.Playback.Repeat, RepeatTrack)
	}
}

func TestStore_ApplyRejectsWrongPayload(t *testing.T) {
	var s Store
	if err := s.Apply(Event{Kind: KindQueue, Payload: "nope"}); err == nil {
		t.Fatal("Apply with wrong payload type returned nil error")
	}
	if err := s.Apply(Event{Kind: "bogus"}); err == nil {
		t.Fatal("Apply with unknown kind returned nil error")
	}
}

func TestRepeatMode_NextAndParse(t *testing.T) {
	if got := RepeatOff.Next().Next().Next(); got != RepeatOff {
		t.Fatalf("three Next() from off = %q, want off", got)
	}
	if got := ParseRepeat(" Track "); got != RepeatTrack {
		t.Fatalf("ParseRepeat = %q, want track", got)
	}
	if got := ParseRepeat("weird"); got != RepeatOff {
		t.Fatalf("ParseRepeat(weird) = %q, want off", got)
	}
}
