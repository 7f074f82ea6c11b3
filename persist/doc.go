// Package persist stores the signed-in session across restarts.
//
// Two keys are used: [KeyToken] holds the raw token bytes and [KeyUser] the
// msgpack encoded [session.User]. [Load] reads them at startup, [Save] writes
// them on login and [Clear] removes both on logout.
//
// Three [Storage] backends are provided: [NewMemory] for tests and ephemeral
// sessions, [NewSQLite] for an on-device file using [modernc.org/sqlite] (pure
// Go, no CGO) and [NewRedis] for sessions shared between processes using
// [github.com/redis/go-redis/v9]. The I/O backed stores apply a per-operation
// timeout ([DefaultQueryTimeout]) derived from the caller's context.
package persist
