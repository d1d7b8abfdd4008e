package bridge

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/state"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, time.Second},
		{"negative failures", -1, time.Second},
		{"one failure", 1, 2 * time.Second},
		{"two failures", 2, 4 * time.Second},
		{"three failures", 3, 8 * time.Second},
		{"four failures", 4, 16 * time.Second},
		{"five failures capped", 5, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 40, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseBackoff)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseBackoff, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	for failures := 0; failures <= 70; failures++ {
		got := calculateBackoff(failures, baseBackoff)
		if got > maxBackoff || got <= 0 {
			t.Errorf("calculateBackoff(%d) = %v, outside (0, %v]", failures, got, maxBackoff)
		}
	}
}

func TestMessage_ValidateAndDecode(t *testing.T) {
	track := &state.Track{ID: "t1", Title: "Song", DurationMs: 1000}
	msg, err := StateChange(state.Event{Kind: state.KindTrack, Payload: track})
	if err != nil {
		t.Fatalf("StateChange: %v", err)
	}
	ev, err := msg.Event()
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	got, ok := ev.Payload.(*state.Track)
	if !ok || got.ID != "t1" {
		t.Fatalf("payload = %#v", ev.Payload)
	}

	cleared, _ := StateChange(state.Event{Kind: state.KindTrack, Payload: (*state.Track)(nil)})
	ev, err = cleared.Event()
	if err != nil || ev.Payload.(*state.Track) != nil {
		t.Fatalf("cleared track = %#v, %v", ev.Payload, err)
	}

	bad := []Message{
		{Kind: "nope"},
		{Kind: KindCommand},
		{Kind: KindStateChange},
	}
	for _, m := range bad {
		if err := m.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", m)
		}
	}
	if _, err := (Message{Kind: KindCommand, Action: "x"}).Event(); err == nil {
		t.Error("Event on a command should fail")
	}
}

func TestMessage_CommandArgs(t *testing.T) {
	msg, _ := SetOpacity(42)
	if v, err := msg.Opacity(); err != nil || v != 42 {
		t.Fatalf("Opacity = %d, %v", v, err)
	}
	toast := notify.New(notify.Warning, "hi", 2*time.Second)
	msg, _ = MirrorToast(toast)
	got, err := msg.Toast()
	if err != nil || got != toast {
		t.Fatalf("Toast = %+v, %v, want %+v", got, err, toast)
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	delivered int
	dropped   int
}

func (r *countingRecorder) ObserveForward(delivered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if delivered {
		r.delivered++
	} else {
		r.dropped++
	}
}

func TestServer_ForwardWithoutPeersIsNoop(t *testing.T) {
	rec := &countingRecorder{}
	s := NewServer(WithRecorder(rec))
	msg, _ := Command(ActionToggleEditMode, nil)
	s.Forward(msg)
	if rec.delivered != 0 || rec.dropped != 0 {
		t.Fatalf("recorder = %+v, want untouched", rec)
	}
}

func TestServer_FullOutboxDrops(t *testing.T) {
	rec := &countingRecorder{}
	s := NewServer(WithRecorder(rec))
	p := &peer{out: make(chan Message, 1), done: make(chan struct{})}
	s.peers[p] = struct{}{}

	first, _ := Command(ActionEnterEditMode, nil)
	second, _ := Command(ActionExitEditMode, nil)
	s.Forward(first)
	s.Forward(second)

	if rec.delivered != 1 || rec.dropped != 1 {
		t.Fatalf("delivered = %d dropped = %d, want 1 and 1", rec.delivered, rec.dropped)
	}
	if got := <-p.out; got.Action != ActionEnterEditMode {
		t.Fatalf("queued = %q, want the first message", got.Action)
	}
}

func TestBridge_ReplayThenOrderedForward(t *testing.T) {
	connected := state.Connection{Connected: true}
	replayed, _ := StateChange(state.Event{Kind: state.KindConnection, Payload: connected})
	srv := NewServer(WithReplay(func() []Message { return []Message{replayed} }))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(strings.TrimPrefix(ts.URL, "http://"))
	got := make(chan Message, 16)
	client.OnUpdate(func(m Message) { got <- m })
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	first := recv(t, got)
	if first.Kind != KindStateChange || first.StateKind != state.KindConnection {
		t.Fatalf("first message = %+v, want the replayed connection", first)
	}

	waitFor(t, func() bool { return srv.Peers() == 1 })
	actions := []string{ActionEnterEditMode, ActionToggleEditMode, ActionExitEditMode}
	for _, a := range actions {
		msg, _ := Command(a, nil)
		srv.Forward(msg)
	}
	for i, want := range actions {
		if m := recv(t, got); m.Action != want {
			t.Fatalf("message %d = %q, want %q", i, m.Action, want)
		}
	}
	if !client.Connected() {
		t.Fatal("client reports disconnected")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
	waitFor(t, func() bool { return srv.Peers() == 0 })
}

func TestClient_BacksOffWhileUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := NewClient(addr)
	var delays []time.Duration
	client.wait = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		if len(delays) == 4 {
			cancel()
			return false
		}
		return true
	}
	if err := client.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil after cancel", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
}

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bridge message")
		return Message{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
