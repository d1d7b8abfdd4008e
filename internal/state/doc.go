// Package state provides the observable playback store shared by a surface's
// poller, renderer and bridge.
//
// # Overview
//
// Each flyover surface (the control panel and the overlay) owns exactly one
// Store. It holds the current track, the transport state, the queue,
// connectivity and the last search results. The store does no I/O; it is
// pure data plus change notification.
//
// # Architecture
//
//	Producers:                      Consumers (subscription order):
//	┌───────────────────┐           ┌─────────────────────────────┐
//	│ remote.SyncClient │──Set*()──→│ ui model   (p.Send)         │
//	│ bridge.Client     │──Apply()─→│ bridge.Server (Forward)     │
//	└───────────────────┘           │ media.Mirror (MPRIS)        │
//	                                │ overlay compositor          │
//	                                └─────────────────────────────┘
//
// # Update Semantics
//
// Every setter:
//
//  1. clones its payload so callers cannot mutate stored data
//  2. recomputes derived fields (IsPlaying, PositionMs, DurationMs)
//  3. emits exactly one Event{Kind, Payload} to every subscriber, in
//     subscription order, before returning
//
// There is no batching and no coalescing of rapid updates. A panicking
// subscriber is recovered and logged so later subscribers still receive the
// event.
//
// # Concurrency Model
//
// Updates are serialized by a dispatch mutex held for the whole update,
// including notification, so two updates never interleave even though the
// fast and slow poll loops run on separate goroutines. Snapshot takes only a
// read lock and can be called at any time, including from inside a
// subscriber. Subscribers must not call setters; doing so deadlocks.
//
// # Failure Tracking
//
// RecordFailure and RecordSuccess track consecutive failed polls for the
// "offline" indicator. They never touch track, playback or queue data: a
// failed poll must leave those byte-for-byte unchanged.
//
// # Clamping
//
// A playback position reported past the end of the track is clamped to the
// track duration when stored, so ProgressPercent is always within [0, 100].
//
// # Testing Considerations
//
// The zero Store is ready to use. Set Now to pin LastUpdated in tests.
package state
