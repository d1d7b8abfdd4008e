// Package config loads flyover's runtime configuration.
//
// # Overview
//
// Configuration says where Spotify lives, which client id to authorize with,
// how often to poll and where the two surfaces meet. User-facing preferences
// (theme, opacity, hotkeys) live in the prefs package instead.
//
// # Resolution Order
//
//  1. Built-in defaults (Default)
//  2. TOML file, ~/.config/flyover/config.toml unless a path is given;
//     a missing file is not an error, empty fields keep their default
//  3. A .env file in the working directory, loaded with godotenv without
//     overriding variables that are already set
//  4. Environment variables
//
// # Environment Variables
//
//   - FLYOVER_CLIENT_ID (falls back to SPOTIFY_CLIENT_ID)
//   - FLYOVER_API_BASE_URL, FLYOVER_ACCOUNTS_URL
//   - FLYOVER_REDIRECT_PORT
//   - FLYOVER_BRIDGE_ADDR
//   - FLYOVER_LOG_LEVEL
//   - FLYOVER_METRICS_ADDR (empty disables the metrics endpoint)
//
// # Default Values
//
//   - API: https://api.spotify.com/v1, accounts: https://accounts.spotify.com
//   - OAuth redirect: http://127.0.0.1:8080/callback
//   - Playback poll: 1s; queue poll: 5 × playback poll
//   - Bridge: 127.0.0.1:8974
//   - Data dir: ~/.local/share/flyover (database and flyover.log)
//
// # Error Handling
//
// A malformed TOML file or an unparseable port is an error: the caller
// should report it and exit rather than run against the wrong account or
// port.
package config
