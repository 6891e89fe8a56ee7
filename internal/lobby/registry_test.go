package lobby

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
)

// fakeConn records everything the registry does to a connection.
type fakeConn struct {
	mu       sync.Mutex
	sent     []string
	closed   bool
	code     int
	reason   string
	closedCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closedCh: make(chan struct{})}
}

func (c *fakeConn) Send(msg string) {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
}

func (c *fakeConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
	close(c.closedCh)
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) closeState() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

func newTestRegistry(cfg Config) *Registry {
	return NewRegistry(cfg, nil, metrics.New())
}

func hostedCode(t *testing.T, c *fakeConn) string {
	t.Helper()
	msgs := c.messages()
	if len(msgs) == 0 {
		t.Fatalf("host received no messages")
	}
	if !strings.HasPrefix(msgs[0], "GAME\n") {
		t.Fatalf("first host message=%q, want GAME", msgs[0])
	}
	return strings.TrimPrefix(msgs[0], "GAME\n")
}

func TestRegistry_HostAllocatesLobbyAndSendsCode(t *testing.T) {
	r := newTestRegistry(Config{})
	conn := newFakeConn()

	p, err := r.Admit(conn)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := r.Host(p); err != nil {
		t.Fatalf("Host: %v", err)
	}

	code := hostedCode(t, conn)
	if len(code) != CodeLength {
		t.Fatalf("code %q has length %d, want %d", code, len(code), CodeLength)
	}
	if _, ok := r.Lookup(code); !ok {
		t.Fatalf("lobby %q not registered", code)
	}
	if p.Role() != RoleHost {
		t.Fatalf("role=%v, want host", p.Role())
	}
	if got := r.LobbyCount(); got != 1 {
		t.Fatalf("LobbyCount=%d, want 1", got)
	}
}

func TestRegistry_JoinPairsAndNotifiesBothSides(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()
	guestConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	if err := r.Host(host); err != nil {
		t.Fatalf("Host: %v", err)
	}
	code := hostedCode(t, hostConn)

	guest, _ := r.Admit(guestConn)
	if err := r.Join(guest, code); err != nil {
		t.Fatalf("Join: %v", err)
	}

	wantGuest := []string{"GAME\n" + code, "PEER\n"}
	if got := guestConn.messages(); len(got) != 2 || got[0] != wantGuest[0] || got[1] != wantGuest[1] {
		t.Fatalf("guest messages=%q, want %q", got, wantGuest)
	}
	hostMsgs := hostConn.messages()
	if len(hostMsgs) != 2 || hostMsgs[1] != "PEER\n" {
		t.Fatalf("host messages=%q, want PEER notification", hostMsgs)
	}
	if guest.Role() != RoleGuest {
		t.Fatalf("guest role=%v, want guest", guest.Role())
	}
	if host.Lobby() != guest.Lobby() {
		t.Fatalf("host and guest are in different lobbies")
	}
	if !host.Lobby().Paired() {
		t.Fatalf("lobby not paired after join")
	}
}

func TestRegistry_JoinUnknownCode(t *testing.T) {
	r := newTestRegistry(Config{})
	p, _ := r.Admit(newFakeConn())

	if err := r.Join(p, "ZZZZZ"); err != ErrLobbyNotFound {
		t.Fatalf("Join err=%v, want %v", err, ErrLobbyNotFound)
	}
}

func TestRegistry_JoinFullLobby(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	code := hostedCode(t, hostConn)

	guest, _ := r.Admit(newFakeConn())
	if err := r.Join(guest, code); err != nil {
		t.Fatalf("first Join: %v", err)
	}

	third, _ := r.Admit(newFakeConn())
	if err := r.Join(third, code); err != ErrGameFull {
		t.Fatalf("second Join err=%v, want %v", err, ErrGameFull)
	}
}

func TestRegistry_PeerBelongsToAtMostOneLobby(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()
	otherConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	code := hostedCode(t, hostConn)

	if err := r.Host(host); err != ErrAlreadyInLobby {
		t.Fatalf("second Host err=%v, want %v", err, ErrAlreadyInLobby)
	}

	other, _ := r.Admit(otherConn)
	_ = r.Host(other)
	if err := r.Join(other, code); err != ErrAlreadyInLobby {
		t.Fatalf("Join while hosting err=%v, want %v", err, ErrAlreadyInLobby)
	}
}

func TestRegistry_MaxLobbies(t *testing.T) {
	r := newTestRegistry(Config{MaxLobbies: 1})

	first, _ := r.Admit(newFakeConn())
	if err := r.Host(first); err != nil {
		t.Fatalf("Host: %v", err)
	}

	second, _ := r.Admit(newFakeConn())
	if err := r.Host(second); err != ErrTooManyLobbies {
		t.Fatalf("Host err=%v, want %v", err, ErrTooManyLobbies)
	}
}

func TestRegistry_MaxPeers(t *testing.T) {
	r := newTestRegistry(Config{MaxPeers: 1})

	p, err := r.Admit(newFakeConn())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if _, err := r.Admit(newFakeConn()); err != ErrTooManyPeers {
		t.Fatalf("Admit err=%v, want %v", err, ErrTooManyPeers)
	}
	if got := r.PeerCount(); got != 1 {
		t.Fatalf("PeerCount=%d, want 1 (rejection must not count)", got)
	}

	r.Release(p)
	if got := r.PeerCount(); got != 0 {
		t.Fatalf("PeerCount=%d, want 0 after release", got)
	}
	if _, err := r.Admit(newFakeConn()); err != nil {
		t.Fatalf("Admit after release: %v", err)
	}
}

func TestRegistry_ReleaseHostTearsDownLobby(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()
	guestConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	code := hostedCode(t, hostConn)

	guest, _ := r.Admit(guestConn)
	_ = r.Join(guest, code)

	r.Release(host)

	if _, ok := r.Lookup(code); ok {
		t.Fatalf("lobby %q still registered after host release", code)
	}
	closed, closeCode, reason := guestConn.closeState()
	if !closed {
		t.Fatalf("guest connection not closed after host release")
	}
	if closeCode != CloseNormal || reason != "BYE" {
		t.Fatalf("guest close=(%d, %q), want (%d, BYE)", closeCode, reason, CloseNormal)
	}
}

func TestRegistry_HostDisconnectBeforeJoinLeavesNoState(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	code := hostedCode(t, hostConn)

	r.Release(host)
	r.Release(host) // idempotent

	if got := r.LobbyCount(); got != 0 {
		t.Fatalf("LobbyCount=%d, want 0", got)
	}
	if got := r.PeerCount(); got != 0 {
		t.Fatalf("PeerCount=%d, want 0", got)
	}

	// The stale code must no longer resolve for new joiners.
	p, _ := r.Admit(newFakeConn())
	if err := r.Join(p, code); err != ErrLobbyNotFound {
		t.Fatalf("Join stale code err=%v, want %v", err, ErrLobbyNotFound)
	}
}

func TestRegistry_RelayForwardsVerbatim(t *testing.T) {
	r := newTestRegistry(Config{})
	hostConn := newFakeConn()
	guestConn := newFakeConn()

	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	code := hostedCode(t, hostConn)
	guest, _ := r.Admit(guestConn)
	_ = r.Join(guest, code)

	payload := "v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n"
	if err := r.Relay(host, "OFFER", payload); err != nil {
		t.Fatalf("Relay host->guest: %v", err)
	}
	if err := r.Relay(guest, "ANSWER", "sdp-answer"); err != nil {
		t.Fatalf("Relay guest->host: %v", err)
	}

	guestMsgs := guestConn.messages()
	if got := guestMsgs[len(guestMsgs)-1]; got != "OFFER\n"+payload {
		t.Fatalf("guest got %q, want verbatim offer", got)
	}
	hostMsgs := hostConn.messages()
	if got := hostMsgs[len(hostMsgs)-1]; got != "ANSWER\nsdp-answer" {
		t.Fatalf("host got %q, want verbatim answer", got)
	}
}

func TestRegistry_RelayPreconditions(t *testing.T) {
	r := newTestRegistry(Config{})

	loner, _ := r.Admit(newFakeConn())
	if err := r.Relay(loner, "OFFER", "sdp"); err != ErrNeedLobby {
		t.Fatalf("Relay unassigned err=%v, want %v", err, ErrNeedLobby)
	}

	hostConn := newFakeConn()
	host, _ := r.Admit(hostConn)
	_ = r.Host(host)
	if err := r.Relay(host, "OFFER", "sdp"); err != ErrNeedPeer {
		t.Fatalf("Relay without guest err=%v, want %v", err, ErrNeedPeer)
	}
}

func TestRegistry_JoinTimeoutDisconnectsUnassignedPeer(t *testing.T) {
	r := newTestRegistry(Config{JoinTimeout: 20 * time.Millisecond})
	conn := newFakeConn()

	if _, err := r.Admit(conn); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	select {
	case <-conn.closedCh:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for join-timeout disconnect")
	}
	_, code, reason := conn.closeState()
	if code != CloseNoLobby || reason != "NO_LOBBY" {
		t.Fatalf("close=(%d, %q), want (%d, NO_LOBBY)", code, reason, CloseNoLobby)
	}
}

func TestRegistry_AssignmentCancelsJoinTimeout(t *testing.T) {
	r := newTestRegistry(Config{JoinTimeout: 20 * time.Millisecond})
	conn := newFakeConn()

	p, _ := r.Admit(conn)
	if err := r.Host(p); err != nil {
		t.Fatalf("Host: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if closed, _, _ := conn.closeState(); closed {
		t.Fatalf("connection closed despite hosting before the timeout")
	}
}

func TestRegistry_PeerIDsAreUniqueAndMonotonic(t *testing.T) {
	r := newTestRegistry(Config{})

	var last uint64
	for i := 0; i < 10; i++ {
		p, err := r.Admit(newFakeConn())
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if p.ID() <= last {
			t.Fatalf("peer id %d not greater than previous %d", p.ID(), last)
		}
		last = p.ID()
		r.Release(p)
	}
}

func TestRegistry_CloseDisconnectsEveryPeerAndRefusesAdmission(t *testing.T) {
	r := newTestRegistry(Config{})
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, c := range conns {
		if _, err := r.Admit(c); err != nil {
			t.Fatalf("Admit: %v", err)
		}
	}

	r.Close()

	for i, c := range conns {
		if closed, _, _ := c.closeState(); !closed {
			t.Fatalf("conn %d not disconnected on Close", i)
		}
	}
	if _, err := r.Admit(newFakeConn()); err == nil {
		t.Fatalf("Admit after Close succeeded, want error")
	}
}
