// Package media mirrors playback onto the desktop media session and routes
// media keys back to the sync client. On Linux the session is MPRIS over the
// D-Bus session bus; other platforms get ErrUnsupported from Start.
package media

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	logging "github.com/ipfs/go-log/v2"

	"github.com/five82/flyover/internal/display"
	"github.com/five82/flyover/internal/state"
)

var log = logging.Logger("media")

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	propertiesInterface  = "org.freedesktop.DBus.Properties"
	mprisBusName         = "org.mpris.MediaPlayer2.flyover"
	mprisObjectPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	trackPathPrefix      = "/org/five82/flyover/track/"
	noTrackPath          = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

	identity       = "flyover"
	commandTimeout = 5 * time.Second
	seekTolerance  = 2000 // ms
)

// ErrUnsupported is returned by Start where no media session exists.
var ErrUnsupported = errors.New("media session not supported on this platform")

// Controller carries out media-key commands. *remote.SyncClient satisfies it.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetShuffle(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, mode state.RepeatMode) error
}

// LoopStatus is the MPRIS name for a repeat mode.
type LoopStatus string

const (
	LoopNone     LoopStatus = "None"
	LoopTrack    LoopStatus = "Track"
	LoopPlaylist LoopStatus = "Playlist"
)

// LoopStatusFor maps a repeat mode onto MPRIS. Context repeat is Playlist.
func LoopStatusFor(mode state.RepeatMode) LoopStatus {
	switch mode {
	case state.RepeatContext:
		return LoopPlaylist
	case state.RepeatTrack:
		return LoopTrack
	default:
		return LoopNone
	}
}

// RepeatFor is the inverse of LoopStatusFor. Unknown names report false.
func RepeatFor(status LoopStatus) (state.RepeatMode, bool) {
	switch status {
	case LoopNone:
		return state.RepeatOff, true
	case LoopPlaylist:
		return state.RepeatContext, true
	case LoopTrack:
		return state.RepeatTrack, true
	default:
		return "", false
	}
}

// PlaybackStatus is Playing, Paused, or Stopped when nothing is loaded.
func PlaybackStatus(snap state.Snapshot) string {
	switch {
	case snap.Track == nil:
		return "Stopped"
	case snap.IsPlaying:
		return "Playing"
	default:
		return "Paused"
	}
}

// TrackPath derives a stable object path for a track id.
func TrackPath(t *state.Track) dbus.ObjectPath {
	if t == nil || t.ID == "" {
		return noTrackPath
	}
	var b strings.Builder
	for _, r := range t.ID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return dbus.ObjectPath(trackPathPrefix + b.String())
}

// Metadata builds the xesam/mpris map for t. The title is normalized the same
// way the surfaces show it.
func Metadata(t *state.Track) map[string]dbus.Variant {
	m := map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(TrackPath(t))}
	if t == nil {
		return m
	}
	if title := display.NormalizeTitle(t.Title); title != "" {
		m["xesam:title"] = dbus.MakeVariant(title)
	}
	if len(t.Artists) > 0 {
		m["xesam:artist"] = dbus.MakeVariant(append([]string(nil), t.Artists...))
	}
	if t.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(t.Album)
	}
	if t.DurationMs > 0 {
		m["mpris:length"] = dbus.MakeVariant(int64(t.DurationMs) * 1000)
	}
	if img := t.Image(); img != "" {
		m["mpris:artUrl"] = dbus.MakeVariant(img)
	}
	if t.URI != "" {
		m["xesam:url"] = dbus.MakeVariant(t.URI)
	}
	return m
}

// player holds the D-Bus facing state. Its exported methods are the MPRIS
// method and property handlers; the bus connection lives in Session.
type player struct {
	ctrl Controller
	now  func() time.Time
	emit func(name string, values ...any) error

	mu    sync.Mutex
	snap  state.Snapshot
	props map[string]dbus.Variant
}

func newPlayer(ctrl Controller) *player {
	p := &player{ctrl: ctrl, now: time.Now}
	p.props = p.playerProperties()
	return p
}

// Update mirrors snap and announces the player properties that changed.
func (p *player) Update(snap state.Snapshot) {
	p.mu.Lock()
	prev := p.snap
	p.snap = snap
	next := p.playerProperties()
	changed := make(map[string]dbus.Variant)
	for k, v := range next {
		if k == "Position" {
			continue
		}
		if old, ok := p.props[k]; !ok || !reflect.DeepEqual(old.Value(), v.Value()) {
			changed[k] = v
		}
	}
	p.props = next
	seeked := jumped(prev, snap)
	position := int64(snap.PositionMs) * 1000
	p.mu.Unlock()

	if len(changed) > 0 {
		p.signal(propertiesInterface+".PropertiesChanged", mprisPlayerInterface, changed, []string{})
	}
	if seeked {
		p.signal(mprisPlayerInterface+".Seeked", position)
	}
}

// jumped reports a position change on the same track that interpolation does
// not explain.
func jumped(prev, next state.Snapshot) bool {
	if prev.Track == nil || next.Track == nil || prev.Track.ID != next.Track.ID {
		return false
	}
	if prev.Playback == nil || next.Playback == nil {
		return false
	}
	expected := prev.PositionAt(next.Playback.SyncedAt)
	diff := next.PositionMs - expected
	return diff > seekTolerance || diff < -seekTolerance
}

func (p *player) signal(name string, values ...any) {
	if p.emit == nil {
		return
	}
	if err := p.emit(name, values...); err != nil {
		log.Debugw("media signal failed", "signal", name, "error", err)
	}
}

func (p *player) snapshot() state.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *player) run(action string, fn func(context.Context) error) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warnw("media command failed", "action", action, "error", err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// org.mpris.MediaPlayer2

func (p *player) Raise() *dbus.Error { return nil }
func (p *player) Quit() *dbus.Error  { return nil }

// org.mpris.MediaPlayer2.Player

func (p *player) Play() *dbus.Error      { return p.run("play", p.ctrl.Play) }
func (p *player) Pause() *dbus.Error     { return p.run("pause", p.ctrl.Pause) }
func (p *player) PlayPause() *dbus.Error { return p.run("playpause", p.ctrl.TogglePlay) }
func (p *player) Stop() *dbus.Error      { return p.run("stop", p.ctrl.Pause) }
func (p *player) Next() *dbus.Error      { return p.run("next", p.ctrl.Next) }
func (p *player) Previous() *dbus.Error  { return p.run("previous", p.ctrl.Previous) }

// Seek moves by offset microseconds. Seeking past the end skips the track.
func (p *player) Seek(offset int64) *dbus.Error {
	snap := p.snapshot()
	if snap.Track == nil {
		return nil
	}
	pos := snap.PositionAt(p.now()) + int(offset/1000)
	if snap.DurationMs > 0 && pos > snap.DurationMs {
		return p.Next()
	}
	pos = max(pos, 0)
	return p.run("seek", func(ctx context.Context) error { return p.ctrl.Seek(ctx, pos) })
}

// SetPosition is ignored for a stale track id or an out of range position.
func (p *player) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	snap := p.snapshot()
	if snap.Track == nil || trackID != TrackPath(snap.Track) {
		return nil
	}
	if position < 0 || (snap.DurationMs > 0 && position/1000 > int64(snap.DurationMs)) {
		return nil
	}
	return p.run("seek", func(ctx context.Context) error { return p.ctrl.Seek(ctx, int(position/1000)) })
}

func (p *player) OpenUri(string) *dbus.Error { return nil }

// org.freedesktop.DBus.Properties

func (p *player) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	var props map[string]dbus.Variant
	switch iface {
	case mprisInterface:
		props = rootProperties()
	case mprisPlayerInterface:
		p.mu.Lock()
		props = p.playerProperties()
		p.mu.Unlock()
	default:
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (p *player) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return rootProperties(), nil
	case mprisPlayerInterface:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.playerProperties(), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

// Set forwards Shuffle and LoopStatus writes. The mirrored value changes
// only once the next poll confirms it.
func (p *player) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}
	switch prop {
	case "Shuffle":
		on, ok := value.Value().(bool)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for Shuffle"))
		}
		return p.run("shuffle", func(ctx context.Context) error { return p.ctrl.SetShuffle(ctx, on) })
	case "LoopStatus":
		name, _ := value.Value().(string)
		mode, ok := RepeatFor(LoopStatus(name))
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid LoopStatus %q", name))
		}
		return p.run("repeat", func(ctx context.Context) error { return p.ctrl.SetRepeat(ctx, mode) })
	}
	return nil
}

func rootProperties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(false),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant(identity),
		"DesktopEntry":        dbus.MakeVariant(identity),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"spotify"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{}),
	}
}

// playerProperties must be called with p.mu held.
func (p *player) playerProperties() map[string]dbus.Variant {
	snap := p.snap
	shuffle := false
	loop := LoopNone
	volume := 1.0
	if pb := snap.Playback; pb != nil {
		shuffle = pb.Shuffle
		loop = LoopStatusFor(pb.Repeat)
		volume = float64(pb.Device.VolumePercent) / 100
	}
	hasTrack := snap.Track != nil
	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(PlaybackStatus(snap)),
		"Metadata":       dbus.MakeVariant(Metadata(snap.Track)),
		"Position":       dbus.MakeVariant(int64(snap.PositionAt(p.now())) * 1000),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"Volume":         dbus.MakeVariant(volume),
		"Shuffle":        dbus.MakeVariant(shuffle),
		"LoopStatus":     dbus.MakeVariant(string(loop)),
		"CanGoNext":      dbus.MakeVariant(snap.Connection.Connected),
		"CanGoPrevious":  dbus.MakeVariant(snap.Connection.Connected),
		"CanPlay":        dbus.MakeVariant(snap.Connection.Connected),
		"CanPause":       dbus.MakeVariant(snap.Connection.Connected),
		"CanSeek":        dbus.MakeVariant(hasTrack && snap.Connection.Connected),
		"CanControl":     dbus.MakeVariant(true),
	}
}

// Session is a live media session bound to a store.
type Session struct {
	conn        *dbus.Conn
	player      *player
	unsubscribe func()
	once        sync.Once
}

// Close stops mirroring and releases the bus name. It is safe to call more
// than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// mirror subscribes p to store and seeds it with the current snapshot.
func mirror(store *state.Store, p *player) func() {
	p.Update(store.Snapshot())
	return store.Subscribe(func(ev state.Event) {
		switch ev.Kind {
		case state.KindTrack, state.KindPlayback, state.KindConnection:
			p.Update(store.Snapshot())
		}
	})
}
