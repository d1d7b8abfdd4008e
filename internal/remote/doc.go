// Package remote keeps the playback store in sync with the Spotify player.
//
// A SyncClient runs two loops: a fast one for the player state and a slow
// one for the queue. Each loop issues its next request only after the
// previous one resolved. Commands (play, skip, seek, volume, queue, search,
// device transfer) go straight to the API and nudge the relevant loop so the
// store catches up without waiting for the next tick.
//
// Failure policy:
//
//   - transient failures leave the store data untouched and only bump the
//     failure streak
//   - "no active device" clears playback and track
//   - an auth failure stops both loops, resets the store and marks the
//     connection lost exactly once
//
// Failed commands return an *ActionError naming the action for the toast.
package remote
