package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/webapi"
)

// ActionError names the user action a failed command belonged to.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Message is the user-facing text, e.g. "Failed to skip track".
func (e *ActionError) Message() string {
	return "Failed to " + e.Action
}

// Profile is the signed-in user.
type Profile struct {
	ID          string
	DisplayName string
	Product     string
}

const (
	seekStep   = 5 * time.Second
	volumeStep = 10
)

// command runs fn and maps failures onto an ActionError. Auth failures also
// disconnect.
func (c *SyncClient) command(ctx context.Context, action string, refresh chan struct{}, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		if webapi.IsAuth(err) {
			c.disconnect(err)
		}
		log.Warnf("%s failed: %v", action, err)
		return &ActionError{Action: action, Err: err}
	}
	if refresh != nil {
		kick(refresh)
	}
	return nil
}

func (c *SyncClient) Play(ctx context.Context) error {
	return c.command(ctx, "resume playback", c.fastKick, func(ctx context.Context) error {
		return c.api.Play(ctx, webapi.PlayOptions{})
	})
}

func (c *SyncClient) Pause(ctx context.Context) error {
	return c.command(ctx, "pause playback", c.fastKick, c.api.Pause)
}

// TogglePlay pauses when the store says playing, otherwise resumes.
func (c *SyncClient) TogglePlay(ctx context.Context) error {
	if c.store.Snapshot().IsPlaying {
		return c.Pause(ctx)
	}
	return c.Play(ctx)
}

func (c *SyncClient) Next(ctx context.Context) error {
	return c.command(ctx, "skip track", c.fastKick, func(ctx context.Context) error {
		if err := c.api.Next(ctx); err != nil {
			return err
		}
		kick(c.slowKick)
		return nil
	})
}

func (c *SyncClient) Previous(ctx context.Context) error {
	return c.command(ctx, "go to previous track", c.fastKick, func(ctx context.Context) error {
		if err := c.api.Previous(ctx); err != nil {
			return err
		}
		kick(c.slowKick)
		return nil
	})
}

// Seek jumps to positionMs.
func (c *SyncClient) Seek(ctx context.Context, positionMs int) error {
	return c.command(ctx, "seek", c.fastKick, func(ctx context.Context) error {
		return c.api.Seek(ctx, positionMs)
	})
}

// SeekBy moves the playhead by delta from its interpolated position.
func (c *SyncClient) SeekBy(ctx context.Context, delta time.Duration) error {
	snap := c.store.Snapshot()
	pos := snap.PositionAt(c.now()) + int(delta/time.Millisecond)
	pos = max(pos, 0)
	if snap.DurationMs > 0 {
		pos = min(pos, snap.DurationMs)
	}
	return c.Seek(ctx, pos)
}

// SeekForward and SeekBackward move by the standard step.
func (c *SyncClient) SeekForward(ctx context.Context) error  { return c.SeekBy(ctx, seekStep) }
func (c *SyncClient) SeekBackward(ctx context.Context) error { return c.SeekBy(ctx, -seekStep) }

// SetVolume sets the device volume in percent.
func (c *SyncClient) SetVolume(ctx context.Context, percent int) error {
	percent = min(max(percent, 0), 100)
	return c.command(ctx, "set volume", c.fastKick, func(ctx context.Context) error {
		return c.api.SetVolume(ctx, percent)
	})
}

// AdjustVolume changes the volume relative to the last known device volume.
func (c *SyncClient) AdjustVolume(ctx context.Context, delta int) error {
	current := 50
	if p := c.store.Snapshot().Playback; p != nil {
		current = p.Device.VolumePercent
	}
	return c.SetVolume(ctx, current+delta)
}

func (c *SyncClient) VolumeUp(ctx context.Context) error   { return c.AdjustVolume(ctx, volumeStep) }
func (c *SyncClient) VolumeDown(ctx context.Context) error { return c.AdjustVolume(ctx, -volumeStep) }

func (c *SyncClient) SetShuffle(ctx context.Context, on bool) error {
	return c.command(ctx, "toggle shuffle", c.fastKick, func(ctx context.Context) error {
		return c.api.SetShuffle(ctx, on)
	})
}

// ToggleShuffle flips the last known shuffle state.
func (c *SyncClient) ToggleShuffle(ctx context.Context) error {
	on := false
	if p := c.store.Snapshot().Playback; p != nil {
		on = p.Shuffle
	}
	return c.SetShuffle(ctx, !on)
}

func (c *SyncClient) SetRepeat(ctx context.Context, mode state.RepeatMode) error {
	return c.command(ctx, "change repeat mode", c.fastKick, func(ctx context.Context) error {
		return c.api.SetRepeat(ctx, string(mode))
	})
}

// CycleRepeat advances off, context, track.
func (c *SyncClient) CycleRepeat(ctx context.Context) error {
	mode := state.RepeatOff
	if p := c.store.Snapshot().Playback; p != nil {
		mode = p.Repeat
	}
	return c.SetRepeat(ctx, mode.Next())
}

// AddToQueue appends uri to the queue and refreshes the queue loop.
func (c *SyncClient) AddToQueue(ctx context.Context, uri string) error {
	return c.command(ctx, "add to queue", c.slowKick, func(ctx context.Context) error {
		return c.api.AddToQueue(ctx, uri)
	})
}

// PlayURI starts a track, or a context such as an album or playlist.
func (c *SyncClient) PlayURI(ctx context.Context, uri string) error {
	opts := webapi.PlayOptions{ContextURI: uri}
	if strings.HasPrefix(uri, "spotify:track:") {
		opts = webapi.PlayOptions{URIs: []string{uri}}
	}
	return c.command(ctx, "start playback", c.fastKick, func(ctx context.Context) error {
		if err := c.api.Play(ctx, opts); err != nil {
			return err
		}
		kick(c.slowKick)
		return nil
	})
}

// Search runs a catalog search and publishes the flattened results. An empty
// query clears results without a request. A failed search clears them too.
func (c *SyncClient) Search(ctx context.Context, query string, types []string, limit int) ([]state.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		c.store.SetSearchResults(nil)
		return nil, nil
	}
	if limit <= 0 {
		limit = MaxSearchResults
	}
	if len(types) == 0 {
		types = []string{webapi.SearchTrack, webapi.SearchArtist, webapi.SearchAlbum, webapi.SearchPlaylist}
	}
	var results []state.SearchResult
	err := c.command(ctx, "search", nil, func(ctx context.Context) error {
		res, err := c.api.Search(ctx, query, types, limit)
		if err != nil {
			return err
		}
		results = flattenSearch(res)
		return nil
	})
	if err != nil {
		c.store.SetSearchResults(nil)
		return nil, err
	}
	c.store.SetSearchResults(results)
	return results, nil
}

// Devices lists the user's devices.
func (c *SyncClient) Devices(ctx context.Context) ([]state.Device, error) {
	var out []state.Device
	err := c.command(ctx, "list devices", nil, func(ctx context.Context) error {
		devices, err := c.api.Devices(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices {
			out = append(out, deviceFrom(d))
		}
		return nil
	})
	return out, err
}

// TransferPlayback moves playback to deviceID.
func (c *SyncClient) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	return c.command(ctx, "switch device", c.fastKick, func(ctx context.Context) error {
		return c.api.TransferPlayback(ctx, deviceID, play)
	})
}

// CycleDevice transfers playback to the device after the active one and
// returns it.
func (c *SyncClient) CycleDevice(ctx context.Context) (state.Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return state.Device{}, err
	}
	if len(devices) == 0 {
		return state.Device{}, &ActionError{Action: "switch device", Err: webapi.ErrNoActiveDevice}
	}
	next := devices[0]
	for i, d := range devices {
		if d.Active {
			next = devices[(i+1)%len(devices)]
			break
		}
	}
	return next, c.TransferPlayback(ctx, next.ID, c.store.Snapshot().IsPlaying)
}

// Profile fetches the signed-in user.
func (c *SyncClient) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.command(ctx, "load profile", nil, func(ctx context.Context) error {
		user, err := c.api.CurrentUser(ctx)
		if err != nil {
			return err
		}
		p = Profile{ID: string(user.ID), DisplayName: user.DisplayName, Product: user.Product}
		return nil
	})
	return p, err
}
