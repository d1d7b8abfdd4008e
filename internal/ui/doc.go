// Package ui is the control panel: a Bubble Tea program that shows the
// current track, progress and queue, runs catalog search, and sends playback
// and overlay commands.
//
// The panel reads playback state from a state.Store snapshot on every tick
// and never mutates it; commands go through a Controller and the store is
// updated by the sync client once the remote confirms them. Overlay commands
// (edit mode, opacity) are forwarded over the bridge.
//
// # Key Bindings
//
//   - space/n/p: play-pause, next, previous
//   - ←/→, +/-: seek and volume
//   - /: search, enter queues a track or plays an album or playlist
//   - o, [ ]: overlay edit mode and opacity
//   - l: logs view (f follow, v level, / search, n/N matches)
//   - c/L: connect and log out
//   - T: cycle theme, h/?: help, q: quit
package ui

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("ui")
