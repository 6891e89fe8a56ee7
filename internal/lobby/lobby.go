package lobby

import "time"

// Lobby pairs exactly one host with at most one guest. A lobby always has a
// host from the moment it exists; it is created through Registry.Host and
// removed from the registry as soon as either member disconnects.
type Lobby struct {
	code      string
	host      *Peer
	guest     *Peer
	createdAt time.Time

	closed bool
}

// Code returns the lobby's join code.
func (l *Lobby) Code() string { return l.code }

// CreatedAt returns the lobby's creation time.
func (l *Lobby) CreatedAt() time.Time { return l.createdAt }

// Paired reports whether both members are present.
func (l *Lobby) Paired() bool { return l.host != nil && l.guest != nil }

// counterpart returns the other member given one, or nil when the other slot
// is empty. Callers treat nil as a precondition failure, never dereference.
func (l *Lobby) counterpart(p *Peer) *Peer {
	if p.role == RoleHost {
		return l.guest
	}
	return l.host
}

// members returns the current members, host first.
func (l *Lobby) members() []*Peer {
	out := make([]*Peer, 0, 2)
	if l.host != nil {
		out = append(out, l.host)
	}
	if l.guest != nil {
		out = append(out, l.guest)
	}
	return out
}
