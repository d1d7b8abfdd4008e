package state

import (
	"strings"
	"time"
)

// RepeatMode mirrors the remote API's repeat states.
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatContext RepeatMode = "context"
	RepeatTrack   RepeatMode = "track"
)

// ParseRepeat maps an API value onto a RepeatMode, defaulting to off.
func ParseRepeat(value string) RepeatMode {
	switch RepeatMode(strings.ToLower(strings.TrimSpace(value))) {
	case RepeatContext:
		return RepeatContext
	case RepeatTrack:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// Next cycles off -> context -> track -> off.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatContext
	case RepeatContext:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// Track is replaced wholesale on every update and never mutated in place.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	Images     []string `json:"images"` // largest first
	DurationMs int      `json:"durationMs"`
}

// ArtistLine joins artist names for display.
func (t Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// Image returns the largest image reference, or "".
func (t Track) Image() string {
	if len(t.Images) == 0 {
		return ""
	}
	return t.Images[0]
}

func (t Track) clone() Track {
	dup := t
	dup.Artists = cloneStrings(t.Artists)
	dup.Images = cloneStrings(t.Images)
	return dup
}

// Device describes the active playback device.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	VolumePercent int    `json:"volumePercent"`
	Active        bool   `json:"active,omitempty"`
}

// PlaybackState is the transport snapshot of the active device.
type PlaybackState struct {
	Track      *Track     `json:"track"`
	IsPlaying  bool       `json:"isPlaying"`
	PositionMs int        `json:"positionMs"`
	Shuffle    bool       `json:"shuffle"`
	Repeat     RepeatMode `json:"repeat"`
	Device     Device     `json:"device"`
	SyncedAt   time.Time  `json:"syncedAt"`
}

// normalized returns a deep copy with the position clamped to the track.
func (p PlaybackState) normalized() PlaybackState {
	dup := p
	if p.Track != nil {
		t := p.Track.clone()
		dup.Track = &t
	}
	if dup.Repeat == "" {
		dup.Repeat = RepeatOff
	}
	dup.PositionMs = clampPosition(dup.PositionMs, dup.Track)
	return dup
}

// Connection records whether the remote account is usable.
type Connection struct {
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}

// SearchResult is one flattened search hit.
type SearchResult struct {
	Type     string `json:"type"` // track, artist, album, playlist
	ID       string `json:"id"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Subtitle string `json:"subtitle,omitempty"`
	Track    *Track `json:"track,omitempty"`
}

func clampPosition(pos int, track *Track) int {
	if pos < 0 {
		return 0
	}
	if track != nil && track.DurationMs > 0 && pos > track.DurationMs {
		return track.DurationMs
	}
	return pos
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	dup := make([]string, len(in))
	copy(dup, in)
	return dup
}

func cloneTracks(in []Track) []Track {
	if len(in) == 0 {
		return nil
	}
	dup := make([]Track, len(in))
	for i, t := range in {
		dup[i] = t.clone()
	}
	return dup
}

func cloneResults(in []SearchResult) []SearchResult {
	if len(in) == 0 {
		return nil
	}
	dup := make([]SearchResult, len(in))
	for i, r := range in {
		dup[i] = r
		if r.Track != nil {
			t := r.Track.clone()
			dup[i].Track = &t
		}
	}
	return dup
}

func cloneTrackPtr(t *Track) *Track {
	if t == nil {
		return nil
	}
	dup := t.clone()
	return &dup
}

func clonePlaybackPtr(p *PlaybackState) *PlaybackState {
	if p == nil {
		return nil
	}
	dup := p.normalized()
	return &dup
}
