// Package overlay implements the overlay surface: a full-terminal Bubble
// Tea program that draws the now-playing, up-next and toast widgets at
// user-chosen cell positions.
//
// The overlay keeps its own state.Store, fed only by bridge messages from
// the control surface. Outside edit mode it disables mouse reporting, so a
// transparent terminal behaves as click-through. In edit mode widgets can
// be dragged and their visibility toggled; layout and visibility persist in
// the local key/value store.
package overlay

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("overlay")
