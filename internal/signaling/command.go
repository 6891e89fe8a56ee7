package signaling

type command int

const (
	cmdUnknown command = iota
	cmdHost
	cmdJoin
	cmdOffer
	cmdAnswer
	cmdCandidate
)

func parseCommand(s string) command {
	switch s {
	case "HOST":
		return cmdHost
	case "JOIN":
		return cmdJoin
	case "OFFER":
		return cmdOffer
	case "ANSWER":
		return cmdAnswer
	case "CANDIDATE":
		return cmdCandidate
	default:
		return cmdUnknown
	}
}

func (c command) String() string {
	switch c {
	case cmdHost:
		return "HOST"
	case cmdJoin:
		return "JOIN"
	case cmdOffer:
		return "OFFER"
	case cmdAnswer:
		return "ANSWER"
	case cmdCandidate:
		return "CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

// relayed reports whether the command is forwarded to the counterpart rather
// than handled by the server.
func (c command) relayed() bool {
	switch c {
	case cmdOffer, cmdAnswer, cmdCandidate:
		return true
	default:
		return false
	}
}
