package signaling

import (
	"strings"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/lobby"
)

// Dispatcher routes parsed protocol frames to registry operations.
type Dispatcher struct {
	reg *lobby.Registry
}

func NewDispatcher(reg *lobby.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// splitMessage splits a frame into its command line and payload. Frames
// without a newline are malformed.
func splitMessage(msg string) (string, string, error) {
	i := strings.IndexByte(msg, '\n')
	if i < 0 {
		return "", "", lobby.ErrInvalidFormat
	}
	return msg[:i], msg[i+1:], nil
}

// firstLine trims the payload of a JOIN frame down to the code itself.
// Clients may send a trailing newline after the code.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Dispatch handles one inbound text frame for p. Errors carry the close code
// to terminate the connection with.
func (d *Dispatcher) Dispatch(p *lobby.Peer, msg string) error {
	cmdStr, payload, err := splitMessage(msg)
	if err != nil {
		return err
	}

	cmd := parseCommand(cmdStr)
	switch {
	case cmd == cmdHost:
		return d.reg.Host(p)
	case cmd == cmdJoin:
		// A mistyped or truncated code simply fails the lookup; no separate
		// shape validation.
		return d.reg.Join(p, lobby.NormalizeCode(firstLine(payload)))
	case cmd.relayed():
		return d.reg.Relay(p, cmd.String(), payload)
	default:
		return lobby.ErrInvalidCommand
	}
}
