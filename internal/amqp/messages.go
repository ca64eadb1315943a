package amqp

import (
	"encoding/json"
	"fmt"

	"presupuestos/internal/core"
)

const contentType = "application/json"

// EncodeEvent serializes a budget event as a message body.
func EncodeEvent(ev core.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a message body and rejects events the workers cannot
// route.
func DecodeEvent(data []byte) (core.Event, error) {
	var ev core.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.ID == "" {
		return core.Event{}, fmt.Errorf("decode event: missing id")
	}
	switch ev.Type {
	case core.EventCatalogReplaced, core.EventExpensePosted:
	default:
		return core.Event{}, fmt.Errorf("decode event %s: unknown type %q", ev.ID, ev.Type)
	}
	return ev, nil
}
