package state

import (
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("state")

// Snapshot represents the latest data available to a surface.
type Snapshot struct {
	Track         *Track
	Playback      *PlaybackState
	Queue         []Track
	Connection    Connection
	SearchResults []SearchResult

	// Derived on every update.
	IsPlaying  bool
	PositionMs int
	DurationMs int

	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // consecutive failed polls, any loop
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// ProgressPercent is always within [0, 100].
func (s Snapshot) ProgressPercent() float64 {
	return Percent(s.PositionMs, s.DurationMs)
}

// PositionAt extrapolates the playback position to now while playing, so a
// surface can advance a progress bar between polls. The result is clamped to
// the track duration.
func (s Snapshot) PositionAt(now time.Time) int {
	if s.Playback == nil {
		return s.PositionMs
	}
	pos := s.PositionMs
	if s.IsPlaying && !s.Playback.SyncedAt.IsZero() && now.After(s.Playback.SyncedAt) {
		pos += int(now.Sub(s.Playback.SyncedAt) / time.Millisecond)
	}
	if s.DurationMs > 0 && pos > s.DurationMs {
		pos = s.DurationMs
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Percent computes position/duration as a percentage clamped to [0, 100].
// An unknown duration yields 0.
func Percent(positionMs, durationMs int) float64 {
	if durationMs <= 0 || positionMs <= 0 {
		return 0
	}
	if positionMs >= durationMs {
		return 100
	}
	return float64(positionMs) * 100 / float64(durationMs)
}

type subscription struct {
	id int
	fn Subscriber
}

// Store is the single source of truth for one surface. Every setter updates
// the snapshot and then notifies subscribers, in subscription order, before
// returning. Setters are serialized: a second update waits until the first
// one's dispatch completes. Subscribers must not call setters.
type Store struct {
	dispatch sync.Mutex // held across update + notify

	mu       sync.RWMutex
	snapshot Snapshot
	subs     []subscription
	nextID   int

	// Now overrides the clock used for LastUpdated; nil means time.Now.
	Now func() time.Time
}

// Subscribe registers fn and returns a func that removes it.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SetTrack replaces the current track. nil clears it.
func (s *Store) SetTrack(t *Track) {
	t = cloneTrackPtr(t)
	s.update(Event{Kind: KindTrack, Payload: cloneTrackPtr(t)}, func(snap *Snapshot) {
		snap.Track = t
	})
}

// SetPlayback replaces the transport state. nil means nothing is playing or
// there is no active device. Positions past the track end are clamped.
func (s *Store) SetPlayback(p *PlaybackState) {
	p = clonePlaybackPtr(p)
	s.update(Event{Kind: KindPlayback, Payload: clonePlaybackPtr(p)}, func(snap *Snapshot) {
		snap.Playback = p
	})
}

// SetConnection records connectivity.
func (s *Store) SetConnection(c Connection) {
	s.update(Event{Kind: KindConnection, Payload: c}, func(snap *Snapshot) {
		snap.Connection = c
	})
}

// SetQueue replaces the queue wholesale.
func (s *Store) SetQueue(q []Track) {
	q = cloneTracks(q)
	s.update(Event{Kind: KindQueue, Payload: cloneTracks(q)}, func(snap *Snapshot) {
		snap.Queue = q
	})
}

// SetSearchResults replaces the last search results.
func (s *Store) SetSearchResults(r []SearchResult) {
	r = cloneResults(r)
	s.update(Event{Kind: KindSearchResults, Payload: cloneResults(r)}, func(snap *Snapshot) {
		snap.SearchResults = r
	})
}

// Reset clears playback, track, queue and search results. Each cleared slice
// of state emits its own event.
func (s *Store) Reset() {
	s.SetPlayback(nil)
	s.SetTrack(nil)
	s.SetQueue(nil)
	s.SetSearchResults(nil)
}

// RecordFailure notes a failed poll without touching any data. It does not
// notify subscribers.
func (s *Store) RecordFailure(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = err
	s.snapshot.ConsecutiveFailures++
}

// RecordSuccess clears the failure streak after a good poll.
func (s *Store) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Track = cloneTrackPtr(s.snapshot.Track)
	snap.Playback = clonePlaybackPtr(s.snapshot.Playback)
	snap.Queue = cloneTracks(s.snapshot.Queue)
	snap.SearchResults = cloneResults(s.snapshot.SearchResults)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func (s *Store) update(ev Event, mutate func(*Snapshot)) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	mutate(&s.snapshot)
	s.snapshot.recompute()
	s.snapshot.LastUpdated = s.now()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		deliver(sub, ev)
	}
}

func deliver(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("subscriber %d panicked on %s: %v", sub.id, ev.Kind, r)
		}
	}()
	sub.fn(ev)
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (snap *Snapshot) recompute() {
	snap.IsPlaying = false
	snap.PositionMs = 0
	snap.DurationMs = 0
	if snap.Track != nil {
		snap.DurationMs = snap.Track.DurationMs
	}
	if p := snap.Playback; p != nil {
		snap.IsPlaying = p.IsPlaying
		if p.Track != nil {
			snap.DurationMs = p.Track.DurationMs
		}
		snap.PositionMs = p.PositionMs
		if snap.DurationMs > 0 && snap.PositionMs > snap.DurationMs {
			snap.PositionMs = snap.DurationMs
		}
	}
}
