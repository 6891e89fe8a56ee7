package signaling

import (
	"strings"
	"sync"
	"testing"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/lobby"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
)

type stubConn struct {
	mu   sync.Mutex
	sent []string
}

func (c *stubConn) Send(msg string) {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
}

func (c *stubConn) CloseWith(code int, reason string) {}
func (c *stubConn) Ping() error                       { return nil }

func (c *stubConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func newDispatchFixture(t *testing.T) (*Dispatcher, *lobby.Registry) {
	t.Helper()
	reg := lobby.NewRegistry(lobby.Config{}, nil, metrics.New())
	t.Cleanup(reg.Close)
	return NewDispatcher(reg), reg
}

func TestDispatch_MissingNewline(t *testing.T) {
	d, reg := newDispatchFixture(t)
	p, _ := reg.Admit(&stubConn{})

	if err := d.Dispatch(p, "HOST"); err != lobby.ErrInvalidFormat {
		t.Fatalf("err=%v, want %v", err, lobby.ErrInvalidFormat)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, reg := newDispatchFixture(t)
	p, _ := reg.Admit(&stubConn{})

	// Unknown commands are rejected regardless of lobby state.
	if err := d.Dispatch(p, "FROBNICATE\nstuff"); err != lobby.ErrInvalidCommand {
		t.Fatalf("err=%v, want %v", err, lobby.ErrInvalidCommand)
	}
}

func TestDispatch_HostThenRelay(t *testing.T) {
	d, reg := newDispatchFixture(t)
	hostConn := &stubConn{}
	guestConn := &stubConn{}

	host, _ := reg.Admit(hostConn)
	if err := d.Dispatch(host, "HOST\n"); err != nil {
		t.Fatalf("HOST: %v", err)
	}
	msgs := hostConn.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "GAME\n") {
		t.Fatalf("host messages=%q, want GAME", msgs)
	}
	code := strings.TrimPrefix(msgs[0], "GAME\n")

	guest, _ := reg.Admit(guestConn)
	if err := d.Dispatch(guest, "JOIN\n"+code); err != nil {
		t.Fatalf("JOIN: %v", err)
	}

	if err := d.Dispatch(host, "OFFER\nsdp-offer"); err != nil {
		t.Fatalf("OFFER: %v", err)
	}
	guestMsgs := guestConn.messages()
	if got := guestMsgs[len(guestMsgs)-1]; got != "OFFER\nsdp-offer" {
		t.Fatalf("guest got %q, want verbatim offer", got)
	}
}

func TestDispatch_JoinNormalizesCode(t *testing.T) {
	d, reg := newDispatchFixture(t)
	hostConn := &stubConn{}

	host, _ := reg.Admit(hostConn)
	_ = d.Dispatch(host, "HOST\n")
	code := strings.TrimPrefix(hostConn.messages()[0], "GAME\n")

	// Lowercase input plus a trailing newline must still resolve.
	guest, _ := reg.Admit(&stubConn{})
	if err := d.Dispatch(guest, "JOIN\n"+strings.ToLower(code)+"\n"); err != nil {
		t.Fatalf("JOIN lowercase: %v", err)
	}
}

func TestDispatch_JoinBadCodeFailsLookup(t *testing.T) {
	d, reg := newDispatchFixture(t)
	p, _ := reg.Admit(&stubConn{})

	for _, code := range []string{"", "ABC", "ABCDEF", "ZZZZZ"} {
		if err := d.Dispatch(p, "JOIN\n"+code); err != lobby.ErrLobbyNotFound {
			t.Fatalf("JOIN %q err=%v, want %v", code, err, lobby.ErrLobbyNotFound)
		}
	}
}

func TestDispatch_RelayWithoutLobby(t *testing.T) {
	d, reg := newDispatchFixture(t)
	p, _ := reg.Admit(&stubConn{})

	for _, msg := range []string{"OFFER\nsdp", "ANSWER\nsdp", "CANDIDATE\ncand"} {
		if err := d.Dispatch(p, msg); err != lobby.ErrNeedLobby {
			t.Fatalf("%q err=%v, want %v", msg, err, lobby.ErrNeedLobby)
		}
	}
}

func TestDispatch_EmptyPayloadRelays(t *testing.T) {
	d, reg := newDispatchFixture(t)
	hostConn := &stubConn{}
	guestConn := &stubConn{}

	host, _ := reg.Admit(hostConn)
	_ = d.Dispatch(host, "HOST\n")
	code := strings.TrimPrefix(hostConn.messages()[0], "GAME\n")
	guest, _ := reg.Admit(guestConn)
	_ = d.Dispatch(guest, "JOIN\n"+code)

	if err := d.Dispatch(host, "CANDIDATE\n"); err != nil {
		t.Fatalf("CANDIDATE with empty payload: %v", err)
	}
	guestMsgs := guestConn.messages()
	if got := guestMsgs[len(guestMsgs)-1]; got != "CANDIDATE\n" {
		t.Fatalf("guest got %q, want empty candidate frame", got)
	}
}
