package remote

import (
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/webapi"
)

func trackFromFull(t *spotify.FullTrack) *state.Track {
	if t == nil || (t.ID == "" && t.Name == "") {
		return nil
	}
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if name := strings.TrimSpace(a.Name); name != "" {
			artists = append(artists, name)
		}
	}
	images := make([]string, 0, len(t.Album.Images))
	for _, img := range t.Album.Images {
		if img.URL != "" {
			images = append(images, img.URL)
		}
	}
	return &state.Track{
		ID:         string(t.ID),
		URI:        string(t.URI),
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		Images:     images,
		DurationMs: int(t.Duration),
	}
}

func deviceFrom(d spotify.PlayerDevice) state.Device {
	return state.Device{
		ID:            string(d.ID),
		Name:          d.Name,
		Type:          d.Type,
		VolumePercent: int(d.Volume),
		Active:        d.Active,
	}
}

func playbackFrom(ps *spotify.PlayerState, syncedAt time.Time) *state.PlaybackState {
	return &state.PlaybackState{
		Track:      trackFromFull(ps.Item),
		IsPlaying:  ps.Playing,
		PositionMs: int(ps.Progress),
		Shuffle:    ps.ShuffleState,
		Repeat:     state.ParseRepeat(ps.RepeatState),
		Device:     deviceFrom(ps.Device),
		SyncedAt:   syncedAt,
	}
}

func queueFrom(q *webapi.QueueResponse) []state.Track {
	if q == nil {
		return nil
	}
	out := make([]state.Track, 0, len(q.Queue))
	for i := range q.Queue {
		if t := trackFromFull(&q.Queue[i]); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// flattenSearch orders results tracks, artists, albums, playlists.
func flattenSearch(res *spotify.SearchResult) []state.SearchResult {
	if res == nil {
		return nil
	}
	var out []state.SearchResult
	if res.Tracks != nil {
		for i := range res.Tracks.Tracks {
			t := trackFromFull(&res.Tracks.Tracks[i])
			if t == nil {
				continue
			}
			out = append(out, state.SearchResult{
				Type:     webapi.SearchTrack,
				ID:       t.ID,
				URI:      t.URI,
				Name:     t.Title,
				Subtitle: t.ArtistLine(),
				Track:    t,
			})
		}
	}
	if res.Artists != nil {
		for _, a := range res.Artists.Artists {
			out = append(out, state.SearchResult{
				Type:     webapi.SearchArtist,
				ID:       string(a.ID),
				URI:      string(a.URI),
				Name:     a.Name,
				Subtitle: strings.Join(a.Genres, ", "),
			})
		}
	}
	if res.Albums != nil {
		for _, al := range res.Albums.Albums {
			names := make([]string, 0, len(al.Artists))
			for _, a := range al.Artists {
				names = append(names, a.Name)
			}
			out = append(out, state.SearchResult{
				Type:     webapi.SearchAlbum,
				ID:       string(al.ID),
				URI:      string(al.URI),
				Name:     al.Name,
				Subtitle: strings.Join(names, ", "),
			})
		}
	}
	if res.Playlists != nil {
		for _, p := range res.Playlists.Playlists {
			out = append(out, state.SearchResult{
				Type:     webapi.SearchPlaylist,
				ID:       string(p.ID),
				URI:      string(p.URI),
				Name:     p.Name,
				Subtitle: p.Owner.DisplayName,
			})
		}
	}
	return out
}
