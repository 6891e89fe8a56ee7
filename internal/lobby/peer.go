package lobby

import "time"

// Conn is the transport-side half of a connection as seen by the core. The
// WebSocket layer implements it; tests substitute fakes.
//
// Send must be fire-and-forget: it may drop the message but must never block.
// CloseWith and Ping must be safe to call from any goroutine, and CloseWith
// must tolerate repeated calls.
type Conn interface {
	Send(msg string)
	CloseWith(code int, reason string)
	Ping() error
}

// Role is a peer's position within a lobby.
type Role int

const (
	RoleUnassigned Role = iota
	RoleHost
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "unassigned"
	}
}

// Peer is one admitted connection. Identity is a process-unique integer that
// is never reused. All fields besides id and conn are guarded by the
// registry mutex.
type Peer struct {
	id   uint64
	conn Conn

	role  Role
	lobby *Lobby

	// joinTimer force-disconnects a peer that never hosts or joins. It is
	// armed on admission and stopped exactly once on assignment; stopping a
	// timer that has already fired is a no-op.
	joinTimer *time.Timer

	closed bool
}

func (p *Peer) ID() uint64 { return p.id }

// Role reports the peer's current role. Only stable while the registry mutex
// is held or after the peer is released.
func (p *Peer) Role() Role { return p.role }

// Lobby returns the lobby the peer belongs to, or nil.
func (p *Peer) Lobby() *Lobby { return p.lobby }

// Send forwards an opaque text message to the transport.
func (p *Peer) Send(msg string) { p.conn.Send(msg) }

// Disconnect requests a normal-termination close. Idempotent by way of the
// transport's CloseWith contract.
func (p *Peer) Disconnect() { p.conn.CloseWith(CloseNormal, "BYE") }

func (p *Peer) assignHost(l *Lobby) {
	p.stopJoinTimer()
	p.role = RoleHost
	p.lobby = l
}

func (p *Peer) assignGuest(l *Lobby) {
	p.stopJoinTimer()
	p.role = RoleGuest
	p.lobby = l
}

func (p *Peer) stopJoinTimer() {
	if p.joinTimer != nil {
		p.joinTimer.Stop()
		p.joinTimer = nil
	}
}
