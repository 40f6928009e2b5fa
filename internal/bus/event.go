package bus

import "time"

// Event is one item on the bus: a realtime frame decoded by the socket
// client (kinds under "rt.") or a connection state change ("conn.").
// At is the local receive time, not a server timestamp.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}
