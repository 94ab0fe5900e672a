// Package sequencer maintains one persistent protocol connection per
// configured channel: dialing, the handshake and resubscription sequence,
// message-ID allocation, command/reply correlation with chunked-reply
// reassembly, and delayed reconnection after unexpected closes.
package sequencer

// Status is the connection state of one channel.
type Status int

// Connection lifecycle: disconnected -> connecting -> connected, with error
// marking an unexpected failure awaiting the reconnect timer.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// QueryKind labels the fixed initial queries issued after every (re)connect,
// so their replies can be routed to the right batch parser.
type QueryKind int

const (
	// QueryNone marks a pending reply claimed by a synchronous Fetch call.
	QueryNone QueryKind = iota
	// QueryFeedBindings is the channel-list query discovering feed handlers.
	QueryFeedBindings
	// QueryShowTree is the show-tree query with depth.
	QueryShowTree
	// QueryInitialState is the initial system/program/carousel state query.
	QueryInitialState
)

// String returns the string representation of QueryKind
func (k QueryKind) String() string {
	switch k {
	case QueryFeedBindings:
		return "feed_bindings"
	case QueryShowTree:
		return "show_tree"
	case QueryInitialState:
		return "initial_state"
	default:
		return "none"
	}
}
