package realtime

// ConnectionState is the lifecycle state of the managed connection.
type ConnectionState int32

const (
	// StateIdle means Connect has never succeeded in starting a dial.
	StateIdle ConnectionState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the transport is open and frames flow both ways.
	StateOpen
	// StateClosing means Disconnect is tearing the transport down.
	StateClosing
	// StateClosed means the transport is gone, possibly with a reconnect pending.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
