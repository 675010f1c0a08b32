package chat

// ConnectionState describes the live channel from the UI's point of view.
// Exactly one value is current at any instant for a session.
type ConnectionState int

const (
	// StateConnecting : a channel is being opened.
	StateConnecting ConnectionState = iota
	// StateConnected : the channel is open and sends are accepted.
	StateConnected
	// StateDisconnected : the channel dropped, a retry is pending.
	StateDisconnected
	// StateFailed : startup failed before any connection succeeded.
	StateFailed
	// StateExhausted : the retry budget is spent. Terminal until Retry.
	StateExhausted
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
