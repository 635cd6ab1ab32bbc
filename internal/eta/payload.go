package eta

import (
	"encoding/json"
	"fmt"

	"bus_eta_bot/internal/domain"
)

// PayloadTypeEta is the only callback payload type the bot issues.
const PayloadTypeEta = "eta"

// Payload is the callback data attached to the Refresh and Done buttons. A
// refresh payload carries everything needed to repeat the query.
type Payload struct {
	Type      string `json:"t"`
	Done      bool   `json:"d"`
	BusStop   string `json:"b,omitempty"`
	ServiceNo string `json:"s,omitempty"`
}

// RefreshPayload repeats the query for busStop and service.
func RefreshPayload(busStop, service string) Payload {
	return Payload{Type: PayloadTypeEta, BusStop: busStop, ServiceNo: service}
}

// DonePayload restores the message and removes the keyboard.
func DonePayload() Payload {
	return Payload{Type: PayloadTypeEta, Done: true}
}

// Encode renders the payload as callback data.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode callback payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses callback data. Data that is not a JSON object yields
// domain.ErrMalformedEvent.
func DecodePayload(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: callback payload: %v", domain.ErrMalformedEvent, err)
	}
	return p, nil
}
