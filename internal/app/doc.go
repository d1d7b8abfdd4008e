// Package app is the composition root for both flyover surfaces.
//
// # Control Panel
//
// RunControl wires the pieces in this order:
//
//	config.Load ─> logging.Setup ─> prefs.Load ─> storage.OpenOrMemory
//	      │
//	      ├─> auth.Session ─> webapi.Client ─> remote.SyncClient ─> state.Store
//	      ├─> bridge.Server (replays the snapshot to each new overlay)
//	      ├─> store.Subscribe / notifier.Listen ─> bridge.Server.Forward
//	      ├─> media.Start (MPRIS on Linux)
//	      ├─> SyncClient.Resume (stored tokens start polling)
//	      └─> ui.Run (blocks)
//
// The store is only written by the sync client. The panel reads snapshots;
// the overlay receives the same changes as bridge messages.
//
// # Overlay
//
// RunOverlay dials the panel's bridge with reconnect backoff and hands every
// message to the overlay program. It owns a separate store fed only by those
// messages.
//
// # Error Handling
//
// Configuration and logging errors are fatal. The bridge listener, metrics
// endpoint and media keys are optional: failures are logged and the panel
// keeps running.
package app

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("app")
