package client

import "encoding/json"

// BusEvent is the JSON shape internal/events.Event serializes to over SSE,
// decoded independently of that package so gafferctl doesn't need to
// import daemon-internal types just to render an event feed.
type BusEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Job     string `json:"job,omitempty"`
	PID     *int   `json:"pid,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DecodeBusEvent unmarshals an SSE frame's data payload into a BusEvent.
func DecodeBusEvent(e Event) (BusEvent, error) {
	var b BusEvent
	if err := json.Unmarshal(e.Data, &b); err != nil {
		return BusEvent{}, err
	}
	return b, nil
}
