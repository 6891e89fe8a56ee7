package metrics

import "sync"

// Event names counted by the relay.
const (
	PeerConnected    = "peer_connected"
	PeerDisconnected = "peer_disconnected"
	LobbyCreated     = "lobby_created"
	LobbyJoined      = "lobby_joined"
	LobbyClosed      = "lobby_closed"
	MessageRelayed   = "message_relayed"
)

// Drop/teardown reasons.
const (
	DropReasonTooManyPeers   = "too_many_peers"
	DropReasonTooManyLobbies = "too_many_lobbies"
	DropReasonJoinTimeout    = "join_timeout"
	DropReasonProtocolError  = "protocol_error"
	DropReasonRateLimited    = "rate_limited"
	DropReasonSendQueueFull  = "send_queue_full"
)

// Metrics is a minimal, concurrency-safe counter registry. It keeps the
// enforcement logic testable and feeds the Prometheus text endpoint.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
