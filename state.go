package livevoice

// State is the connection lifecycle state of a Session.
type State int

const (
	// StateDisconnected is the initial state and the resting state after a
	// disconnect or exhausted reconnection.
	StateDisconnected State = iota
	// StateConnecting covers dialing, the setup handshake and reconnect backoff.
	StateConnecting
	// StateConnected means the service acknowledged the setup frame.
	StateConnected
	// StateError is terminal until the next explicit Connect.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
