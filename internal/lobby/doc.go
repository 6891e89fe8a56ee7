// Package lobby contains the relay's core state: peers, lobbies, and the
// registry that owns both.
//
// The registry is the single serialization point for all shared state. Every
// mutating operation (admission, hosting, joining, relaying, join-timer
// expiry, teardown) takes the registry mutex for the duration of the
// operation, so Lobby and Peer methods never need their own locking. Outbound
// sends are fire-and-forget enqueues on the transport, so holding the mutex
// across them is safe.
package lobby
