// Package webapi provides an HTTP client for the Spotify Web API.
//
// # Overview
//
// The client covers the player endpoints flyover needs (state, queue,
// transport commands, volume, shuffle, repeat, devices), catalog search and
// the current user profile. Wire types come from github.com/zmb3/spotify/v2;
// only the queue and devices envelopes are declared here.
//
// # Authorization
//
// Every request carries a bearer token from a TokenSource. When the remote
// answers 401 the client asks the source to refresh once and retries the
// request once. A second 401 is reported as ErrAuthInvalid.
//
// # Errors
//
//   - ErrNetwork: transport failure, no response
//   - ErrNoActiveDevice: 204 where a body was expected, or 404 on a player endpoint
//   - ErrMalformedResponse: a body that failed to decode
//   - *RejectedError: any other status of 400 or above
//   - ErrAuthInvalid: credentials are gone
//
// IsTransient separates failures worth retrying on the next poll from the
// rest.
package webapi
