package webapi

import "github.com/zmb3/spotify/v2"

// QueueResponse is the body of GET /me/player/queue.
type QueueResponse struct {
	CurrentlyPlaying *spotify.FullTrack  `json:"currently_playing"`
	Queue            []spotify.FullTrack `json:"queue"`
}

// DevicesResponse is the body of GET /me/player/devices.
type DevicesResponse struct {
	Devices []spotify.PlayerDevice `json:"devices"`
}

// PlayOptions selects what PUT /me/player/play starts.
type PlayOptions struct {
	DeviceID   string   `json:"-"`
	ContextURI string   `json:"context_uri,omitempty"`
	URIs       []string `json:"uris,omitempty"`
}

func (o PlayOptions) empty() bool {
	return o.ContextURI == "" && len(o.URIs) == 0
}

type transferBody struct {
	DeviceIDs []string `json:"device_ids"`
	Play      bool     `json:"play"`
}

type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// Search types accepted by /search.
const (
	SearchTrack    = "track"
	SearchArtist   = "artist"
	SearchAlbum    = "album"
	SearchPlaylist = "playlist"
)
