package overlay

import (
	"github.com/five82/flyover/internal/bridge"
	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/storage"
)

// WidgetID names an overlay widget. The ids are the keys of the persisted
// layout and visibility maps.
type WidgetID string

const (
	NowPlaying WidgetID = "nowPlaying"
	UpNext     WidgetID = "upNext"
	Toasts     WidgetID = "toasts"
)

// Widgets lists every widget in draw order.
var Widgets = []WidgetID{NowPlaying, UpNext, Toasts}

// UpNextThresholdMs is how close to the end of a track the up-next widget
// appears.
const UpNextThresholdMs = 10000

// UpNextItems is how many queue entries the up-next widget lists.
const UpNextItems = 5

// Anchor selects which screen corner a Position is measured from.
type Anchor string

const (
	AnchorTopLeft     Anchor = ""
	AnchorBottomRight Anchor = "bottomRight"
)

// Position is a widget offset in cells. With AnchorBottomRight, X and Y are
// distances from the right and bottom edges.
type Position struct {
	X      int    `json:"left"`
	Y      int    `json:"top"`
	Anchor Anchor `json:"anchor,omitempty"`
}

// Layout maps widgets to positions.
type Layout map[WidgetID]Position

// DefaultLayout is used for widgets with no persisted position.
func DefaultLayout() Layout {
	return Layout{
		NowPlaying: {X: 2, Y: 1},
		UpNext:     {X: 2, Y: 6},
		Toasts:     {X: 2, Y: 1, Anchor: AnchorBottomRight},
	}
}

// Rect is a resolved on-screen box.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// toggleWidth is the hit zone of the visibility toggle at the right end of
// a widget's first row.
const toggleWidth = 4

func (r Rect) onToggle(x, y int) bool {
	return y == r.Y && x >= r.X+r.W-toggleWidth && x < r.X+r.W
}

// UpNextVisible decides whether the up-next widget is shown. While editing
// it always is, so it can be placed.
func UpNextVisible(editing, visible bool, queueLen, durationMs, positionMs int, playing bool) bool {
	if editing {
		return true
	}
	if !visible || queueLen == 0 || durationMs <= 0 || !playing {
		return false
	}
	return durationMs-positionMs <= UpNextThresholdMs
}

type drag struct {
	id           WidgetID
	offX, offY   int
	lastX, lastY int
}

// Compositor owns overlay layout, visibility and edit mode. It is driven
// from a single event loop and is not safe for concurrent use.
type Compositor struct {
	kv      storage.KV
	layout  Layout
	visible map[WidgetID]bool
	editing bool
	drag    *drag
	rects   map[WidgetID]Rect
	origin  Position
}

// NewCompositor loads persisted layout and visibility from kv. Missing or
// malformed entries fall back to defaults per widget.
func NewCompositor(kv storage.KV) *Compositor {
	c := &Compositor{
		kv:      kv,
		layout:  DefaultLayout(),
		visible: make(map[WidgetID]bool, len(Widgets)),
		rects:   make(map[WidgetID]Rect, len(Widgets)),
	}
	for _, id := range Widgets {
		c.visible[id] = true
	}
	if kv == nil {
		return c
	}

	var layout Layout
	if storage.LoadJSON(kv, storage.KeyLayout, &layout) {
		for _, id := range Widgets {
			if p, ok := layout[id]; ok {
				c.layout[id] = clampPosition(p)
			}
		}
	}
	var visible map[WidgetID]bool
	if storage.LoadJSON(kv, storage.KeyVisibility, &visible) {
		for _, id := range Widgets {
			if v, ok := visible[id]; ok {
				c.visible[id] = v
			}
		}
	}
	return c
}

// Editing reports whether edit mode is on.
func (c *Compositor) Editing() bool { return c.editing }

// EnterEdit switches to edit mode. It reports false when already editing.
func (c *Compositor) EnterEdit() bool {
	if c.editing {
		return false
	}
	c.editing = true
	return true
}

// ExitEdit leaves edit mode and persists layout and visibility. It reports
// false when not editing.
func (c *Compositor) ExitEdit() bool {
	if !c.editing {
		return false
	}
	c.editing = false
	c.drag = nil
	c.saveLayout()
	c.saveVisibility()
	return true
}

// ToggleEdit flips edit mode.
func (c *Compositor) ToggleEdit() {
	if c.editing {
		c.ExitEdit()
		return
	}
	c.EnterEdit()
}

// Command applies an edit-mode command, local or from the bridge. It
// reports whether the mode changed; unknown actions are ignored.
func (c *Compositor) Command(action string) bool {
	switch action {
	case bridge.ActionToggleEditMode:
		c.ToggleEdit()
		return true
	case bridge.ActionEnterEditMode:
		return c.EnterEdit()
	case bridge.ActionExitEditMode:
		return c.ExitEdit()
	}
	return false
}

// Persisted reports the stored visibility flag of a widget.
func (c *Compositor) Persisted(id WidgetID) bool { return c.visible[id] }

// Shown reports whether a widget other than up-next is drawn.
func (c *Compositor) Shown(id WidgetID) bool {
	return c.editing || c.visible[id]
}

// UpNextShown applies UpNextVisible to a snapshot. positionMs is the
// position to judge by, usually interpolated.
func (c *Compositor) UpNextShown(snap state.Snapshot, positionMs int) bool {
	return UpNextVisible(c.editing, c.visible[UpNext], len(snap.Queue), snap.DurationMs, positionMs, snap.IsPlaying)
}

// ToggleVisibility flips and persists a widget's visibility flag.
func (c *Compositor) ToggleVisibility(id WidgetID) {
	c.visible[id] = !c.visible[id]
	c.saveVisibility()
}

// SetOrigin shifts top-left anchored widgets by the canvas origin from
// preferences.
func (c *Compositor) SetOrigin(x, y int) {
	c.origin = clampPosition(Position{X: x, Y: y})
}

// Position returns the stored position of a widget.
func (c *Compositor) Position(id WidgetID) Position { return c.layout[id] }

// Place resolves a widget of size w×h on a screen of size sw×sh and records
// the box for hit testing.
func (c *Compositor) Place(id WidgetID, w, h, sw, sh int) Rect {
	p := c.layout[id]
	r := Rect{X: c.origin.X + p.X, Y: c.origin.Y + p.Y, W: w, H: h}
	if p.Anchor == AnchorBottomRight {
		r.X = max(0, sw-w-p.X)
		r.Y = max(0, sh-h-p.Y)
	}
	c.rects[id] = r
	return r
}

// Forget drops the recorded box of a widget that was not drawn.
func (c *Compositor) Forget(id WidgetID) { delete(c.rects, id) }

// Press handles a primary-button press at x, y. In edit mode a press on a
// widget's toggle flips its visibility; a press elsewhere on the widget
// starts a drag. It reports whether the press hit a widget.
func (c *Compositor) Press(x, y int) bool {
	if !c.editing {
		return false
	}
	for i := len(Widgets) - 1; i >= 0; i-- {
		id := Widgets[i]
		r, ok := c.rects[id]
		if !ok || !r.contains(x, y) {
			continue
		}
		if r.onToggle(x, y) {
			c.ToggleVisibility(id)
			return true
		}
		c.drag = &drag{id: id, offX: x - r.X, offY: y - r.Y, lastX: max(0, r.X-c.origin.X), lastY: max(0, r.Y-c.origin.Y)}
		return true
	}
	return false
}

// Dragging reports the widget being dragged, if any.
func (c *Compositor) Dragging() (WidgetID, bool) {
	if c.drag == nil {
		return "", false
	}
	return c.drag.id, true
}

// Motion moves the dragged widget so the grabbed cell follows the pointer,
// clamped to the top-left edges.
func (c *Compositor) Motion(x, y int) bool {
	if c.drag == nil {
		return false
	}
	left := max(0, x-c.drag.offX-c.origin.X)
	top := max(0, y-c.drag.offY-c.origin.Y)
	c.drag.lastX, c.drag.lastY = left, top
	c.layout[c.drag.id] = Position{X: left, Y: top}
	if r, ok := c.rects[c.drag.id]; ok {
		r.X, r.Y = c.origin.X+left, c.origin.Y+top
		c.rects[c.drag.id] = r
	}
	return true
}

// Release ends a drag and persists the final absolute position.
func (c *Compositor) Release() bool {
	if c.drag == nil {
		return false
	}
	c.layout[c.drag.id] = Position{X: c.drag.lastX, Y: c.drag.lastY}
	c.drag = nil
	c.saveLayout()
	return true
}

func (c *Compositor) saveLayout() {
	if c.kv == nil {
		return
	}
	if err := storage.SaveJSON(c.kv, storage.KeyLayout, c.layout); err != nil {
		log.Warnw("save overlay layout", "error", err)
	}
}

func (c *Compositor) saveVisibility() {
	if c.kv == nil {
		return
	}
	if err := storage.SaveJSON(c.kv, storage.KeyVisibility, c.visible); err != nil {
		log.Warnw("save overlay visibility", "error", err)
	}
}

func clampPosition(p Position) Position {
	p.X = max(0, p.X)
	p.Y = max(0, p.Y)
	return p
}
