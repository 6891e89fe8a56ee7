package lobby

import "fmt"

// WebSocket close codes used by the relay. The 4xxx range is application
// defined; 1000/1003/1011 are standard codes.
const (
	CloseNormal          = 1000 // deliberate teardown ("BYE")
	CloseUnsupportedData = 1003 // binary frame received
	CloseInternalError   = 1011 // fallback for unexpected faults

	CloseNoLobby        = 4000 // join timeout, malformed message
	CloseGameFull       = 4001
	CloseAlreadyInLobby = 4002
	CloseNeedLobby      = 4003
	CloseInvalidCommand = 4004
	CloseLobbyNotFound  = 4010
	CloseTooManyLobbies = 4020
	CloseTooManyPeers   = 4021
)

// ProtoError is a protocol violation: a close code plus the short reason sent
// in the close frame. All protocol errors are fatal to the offending
// connection.
type ProtoError struct {
	Code   int
	Reason string
}

func (e *ProtoError) Error() string {
	return fmt.Sprintf("%s (close code %d)", e.Reason, e.Code)
}

var (
	ErrInvalidFormat  = &ProtoError{Code: CloseNoLobby, Reason: "INVALID_FORMAT"}
	ErrGameFull       = &ProtoError{Code: CloseGameFull, Reason: "GAME_FULL"}
	ErrAlreadyInLobby = &ProtoError{Code: CloseAlreadyInLobby, Reason: "ALREADY_IN_LOBBY"}
	ErrNeedLobby      = &ProtoError{Code: CloseNeedLobby, Reason: "NEED_LOBBY"}
	// ErrNeedPeer is returned for a relay command sent after hosting but before
	// anyone has joined: there is no counterpart to deliver to yet.
	ErrNeedPeer       = &ProtoError{Code: CloseNeedLobby, Reason: "NEED_PEER"}
	ErrInvalidCommand = &ProtoError{Code: CloseInvalidCommand, Reason: "INVALID_CMD"}
	ErrLobbyNotFound  = &ProtoError{Code: CloseLobbyNotFound, Reason: "LOBBY_DOES_NOT_EXISTS"}
	ErrTooManyLobbies = &ProtoError{Code: CloseTooManyLobbies, Reason: "TOO_MANY_LOBBIES"}
	ErrTooManyPeers   = &ProtoError{Code: CloseTooManyPeers, Reason: "TOO_MANY_PEERS"}
)
