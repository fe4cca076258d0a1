// Package session holds the client-side login state: the [Session] with its
// server-assigned id, account and service maps, challenge flag and lifetime,
// and the [CookieJar] it owns.
//
// # Validity
//
// A session is valid while it has a session id and is younger than its max age,
// which is [DefaultMaxAge] or [ExtendedMaxAge] depending on the extended-login
// flag. Expired sessions are never destroyed; a new login refreshes them in place.
//
// # Persistence
//
// Sessions round-trip through a portable JSON form ([Encode], [Decode]), a
// versioned CBOR form used by the Redis [Store] ([EncodeCompact],
// [DecodeCompact]), and optionally age-sealed files ([SaveFile], [LoadFile]).
//
// # What this package must NOT do
//
//   - Import goICloud or perform network calls.
//   - Store the account password.
package session
