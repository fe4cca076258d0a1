// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:login:<sha256(identifier)>" so account identifiers never reach Redis
// in clear text.
//
// # What this package must NOT do
//
//   - Contact the remote service.
//   - Be imported outside the goICloud module.
package rate
