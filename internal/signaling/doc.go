// Package signaling implements the WebSocket rendezvous protocol spoken by
// game clients.
//
// Every frame is a text message of the form "COMMAND\nPAYLOAD". A connection
// first claims a role with HOST or JOIN, after which OFFER, ANSWER and
// CANDIDATE frames are forwarded verbatim to the paired connection. Protocol
// violations terminate the connection with a close code in the 4000 range; the
// codes are defined in the lobby package alongside the state they guard.
package signaling
