package lobby

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
)

// Config bounds the registry's state.
//
// A value <= 0 means "unlimited" for the caps and "disabled" for the timeout.
type Config struct {
	// MaxPeers caps admitted connections, counted from admission until
	// transport close regardless of lobby membership.
	MaxPeers int

	// MaxLobbies caps concurrently active lobbies.
	MaxLobbies int

	// JoinTimeout is how long an admitted peer may stay unassigned before it
	// is force-disconnected.
	JoinTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPeers:    512,
		MaxLobbies:  256,
		JoinTimeout: time.Second,
	}
}

// codeAllocAttempts bounds the regenerate-on-collision loop when allocating a
// lobby code. With 32^5 possible codes and at most MaxLobbies active,
// exhausting it is effectively impossible.
const codeAllocAttempts = 16

// Registry is the process-wide table of active lobbies and admitted peers.
// See the package comment for the locking model.
type Registry struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	lobbies    map[string]*Lobby
	peers      map[*Peer]struct{}
	nextPeerID uint64
	closed     bool
}

func NewRegistry(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Registry{
		cfg:     cfg,
		log:     logger,
		metrics: m,
		lobbies: make(map[string]*Lobby),
		peers:   make(map[*Peer]struct{}),
	}
}

func (r *Registry) Metrics() *metrics.Metrics { return r.metrics }

// Admit registers a new connection and constructs its peer. Returns
// ErrTooManyPeers when the connection cap is reached; the rejected connection
// never counts against any state.
func (r *Registry) Admit(conn Conn) (*Peer, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrTooManyPeers
	}
	if r.cfg.MaxPeers > 0 && len(r.peers) >= r.cfg.MaxPeers {
		r.metrics.Inc(metrics.DropReasonTooManyPeers)
		r.mu.Unlock()
		return nil, ErrTooManyPeers
	}

	r.nextPeerID++
	p := &Peer{id: r.nextPeerID, conn: conn}
	r.peers[p] = struct{}{}
	if r.cfg.JoinTimeout > 0 {
		p.joinTimer = time.AfterFunc(r.cfg.JoinTimeout, func() {
			r.joinTimeoutExpired(p)
		})
	}
	r.metrics.Inc(metrics.PeerConnected)
	r.mu.Unlock()

	r.log.Debug("peer admitted", "peer", p.ID())
	return p, nil
}

func (r *Registry) joinTimeoutExpired(p *Peer) {
	r.mu.Lock()
	expired := !p.closed && p.lobby == nil
	r.mu.Unlock()

	if !expired {
		// Lost the race against assignment or teardown; treat as cancelled.
		return
	}
	r.metrics.Inc(metrics.DropReasonJoinTimeout)
	r.log.Debug("join timeout expired", "peer", p.ID())
	p.conn.CloseWith(CloseNoLobby, "NO_LOBBY")
}

// Release tears down a peer after its transport closed: the live-connection
// count drops, any pending join timer is cancelled, and the peer's lobby (if
// any) is closed and removed. Safe to call more than once.
func (r *Registry) Release(p *Peer) {
	r.mu.Lock()
	if p.closed {
		r.mu.Unlock()
		return
	}
	p.closed = true
	delete(r.peers, p)
	p.stopJoinTimer()
	r.metrics.Inc(metrics.PeerDisconnected)

	var members []*Peer
	if l := p.lobby; l != nil {
		p.lobby = nil
		members = r.closeLobbyLocked(l)
	}
	r.mu.Unlock()

	for _, m := range members {
		m.Disconnect()
	}
	r.log.Debug("peer released", "peer", p.ID())
}

// closeLobbyLocked removes the lobby from the table and returns the members
// that must be disconnected. Idempotent: a lobby is only torn down once.
func (r *Registry) closeLobbyLocked(l *Lobby) []*Peer {
	delete(r.lobbies, l.code)
	if l.closed {
		return nil
	}
	l.closed = true
	r.metrics.Inc(metrics.LobbyClosed)
	r.log.Info("lobby closed", "code", l.code, "open_lobbies", len(r.lobbies))
	return l.members()
}

// Host creates a lobby with p as host and informs p of the allocated code.
func (r *Registry) Host(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.closed {
		return nil
	}
	if p.lobby != nil {
		return ErrAlreadyInLobby
	}
	if r.cfg.MaxLobbies > 0 && len(r.lobbies) >= r.cfg.MaxLobbies {
		r.metrics.Inc(metrics.DropReasonTooManyLobbies)
		return ErrTooManyLobbies
	}

	code, err := r.newCodeLocked()
	if err != nil {
		return err
	}

	l := &Lobby{code: code, host: p, createdAt: time.Now()}
	p.assignHost(l)
	r.lobbies[code] = l
	r.metrics.Inc(metrics.LobbyCreated)
	r.log.Info("lobby created", "code", code, "peer", p.ID(), "open_lobbies", len(r.lobbies))

	p.Send("GAME\n" + code)
	return nil
}

// newCodeLocked allocates a code not currently in use, regenerating on
// collision.
func (r *Registry) newCodeLocked() (string, error) {
	for attempt := 0; attempt < codeAllocAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		if _, inUse := r.lobbies[code]; !inUse {
			return code, nil
		}
	}
	return "", errors.New("failed to allocate unused lobby code")
}

// Join adds p as guest of the lobby registered under code and informs both
// members that the pairing is complete.
func (r *Registry) Join(p *Peer, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.closed {
		return nil
	}

	l, ok := r.lobbies[code]
	if !ok {
		return ErrLobbyNotFound
	}
	if l.guest != nil {
		return ErrGameFull
	}
	if p.lobby != nil {
		return ErrAlreadyInLobby
	}

	p.assignGuest(l)
	l.guest = p
	r.metrics.Inc(metrics.LobbyJoined)
	r.log.Info("peer joined lobby", "code", code, "peer", p.ID())

	p.Send("GAME\n" + code)
	p.Send("PEER\n")
	l.host.Send("PEER\n")
	return nil
}

// Relay forwards command plus payload verbatim to p's counterpart. The
// payload is never inspected.
func (r *Registry) Relay(p *Peer, command, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.closed {
		return nil
	}
	if p.lobby == nil {
		return ErrNeedLobby
	}
	dest := p.lobby.counterpart(p)
	if dest == nil {
		return ErrNeedPeer
	}

	dest.Send(command + "\n" + payload)
	r.metrics.Inc(metrics.MessageRelayed)
	return nil
}

// Lookup reports whether a lobby is currently registered under code.
func (r *Registry) Lookup(code string) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	return l, ok
}

func (r *Registry) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Registry) LobbyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

// Conns snapshots the transports of all admitted peers, for the keepalive
// probe loop.
func (r *Registry) Conns() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p.conn)
	}
	return out
}

// Close refuses further admissions and disconnects every admitted peer.
// Peers are fully released as their transports close.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	peers := make([]*Peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	for _, p := range peers {
		p.Disconnect()
	}
}
