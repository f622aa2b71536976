package dispatcher

// State is the connection state of a dispatcher.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Stopping
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	State State

	// Delivered counts requests the server accepted.
	Delivered int64

	// Dropped counts requests the server rejected for good.
	Dropped int64

	// Failed counts delivery attempts that will be retried.
	Failed int64

	// Reconnects counts connections established after the first.
	Reconnects int64
}
