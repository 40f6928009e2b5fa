package realtime

import "encoding/json"

// Frame is the JSON envelope for every websocket message, in both
// directions. ID carries the ack correlation for ack-required pushes and
// for the ack replies themselves.
type Frame struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame for the given event.
func NewFrame(event, id string, payload any) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Event: event, ID: id, Payload: raw}, nil
}

// Encode returns the wire bytes for the frame.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
