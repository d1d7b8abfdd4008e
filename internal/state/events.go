package state

import (
	"encoding/json"
	"fmt"
)

// Kind names the slice of state an update touched.
type Kind string

const (
	KindTrack         Kind = "track"
	KindPlayback      Kind = "playbackState"
	KindConnection    Kind = "connection"
	KindQueue         Kind = "queue"
	KindSearchResults Kind = "searchResults"
)

// Kinds lists every update kind in replay order.
var Kinds = []Kind{KindConnection, KindTrack, KindPlayback, KindQueue, KindSearchResults}

// Event is delivered to subscribers once per update. Payload types by kind:
//
//	KindTrack         *Track
//	KindPlayback      *PlaybackState
//	KindConnection    Connection
//	KindQueue         []Track
//	KindSearchResults []SearchResult
type Event struct {
	Kind    Kind
	Payload any
}

// Subscriber receives events synchronously on the updating goroutine.
type Subscriber func(Event)

// DecodePayload turns a JSON payload back into the Go type for kind.
func DecodePayload(kind Kind, raw []byte) (any, error) {
	switch kind {
	case KindTrack:
		var t *Track
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return t, nil
	case KindPlayback:
		var p *PlaybackState
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case KindConnection:
		var c Connection
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return c, nil
	case KindQueue:
		var q []Track
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return q, nil
	case KindSearchResults:
		var r []SearchResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown state kind %q", kind)
	}
}

// Apply routes an event to the matching setter. It is how a surface replays
// updates that originated in another process.
func (s *Store) Apply(ev Event) error {
	switch ev.Kind {
	case KindTrack:
		t, ok := ev.Payload.(*Track)
		if !ok && ev.Payload != nil {
			return payloadError(ev)
		}
		s.SetTrack(t)
	case KindPlayback:
		p, ok := ev.Payload.(*PlaybackState)
		if !ok && ev.Payload != nil {
			return payloadError(ev)
		}
		s.SetPlayback(p)
	case KindConnection:
		c, ok := ev.Payload.(Connection)
		if !ok {
			return payloadError(ev)
		}
		s.SetConnection(c)
	case KindQueue:
		q, ok := ev.Payload.([]Track)
		if !ok && ev.Payload != nil {
			return payloadError(ev)
		}
		s.SetQueue(q)
	case KindSearchResults:
		r, ok := ev.Payload.([]SearchResult)
		if !ok && ev.Payload != nil {
			return payloadError(ev)
		}
		s.SetSearchResults(r)
	default:
		return fmt.Errorf("unknown state kind %q", ev.Kind)
	}
	return nil
}

// ReplayEvents returns one event per kind reflecting the snapshot, so a late
// joiner can rebuild the same state.
func (s Snapshot) ReplayEvents() []Event {
	events := make([]Event, 0, len(Kinds))
	for _, kind := range Kinds {
		var payload any
		switch kind {
		case KindConnection:
			payload = s.Connection
		case KindTrack:
			payload = cloneTrackPtr(s.Track)
		case KindPlayback:
			payload = clonePlaybackPtr(s.Playback)
		case KindQueue:
			payload = cloneTracks(s.Queue)
		case KindSearchResults:
			payload = cloneResults(s.SearchResults)
		}
		events = append(events, Event{Kind: kind, Payload: payload})
	}
	return events
}

func payloadError(ev Event) error {
	return fmt.Errorf("%s payload has type %T", ev.Kind, ev.Payload)
}
