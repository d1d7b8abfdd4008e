// Package bridge carries state changes and overlay commands from the control
// surface to the overlay surface over a loopback WebSocket.
//
// The control surface runs a Server and calls Forward for every store event
// and overlay command. Delivery is at-most-once: each connected peer has a
// bounded outbox drained by a single writer, so messages from one sender
// arrive in order, and a full outbox drops the message instead of blocking
// the caller. A freshly connected peer first receives a replay of the current
// snapshot so it never starts from an empty store.
//
// The overlay runs a Client, which redials with exponential backoff and hands
// each decoded Message to its handlers in arrival order.
package bridge

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("bridge")

// Path is the WebSocket endpoint served by Server.
const Path = "/bridge"
