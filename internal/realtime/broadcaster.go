package realtime

import (
	"encoding/json"
	"log"

	"orderflow/internal/orders"
)

// Broadcaster publishes order lifecycle events to the hub as JSON. Sends are
// non-blocking: if nothing is draining the hub, the event is dropped rather
// than stalling the order workflow.
type Broadcaster struct {
	hub  *Hub
	logf func(format string, args ...any)
}

// NewBroadcaster constructs a Broadcaster on the given hub.
func NewBroadcaster(hub *Hub, logf func(format string, args ...any)) *Broadcaster {
	if logf == nil {
		logf = log.Printf
	}
	return &Broadcaster{hub: hub, logf: logf}
}

// Publish implements orders.EventSink.
func (b *Broadcaster) Publish(ev orders.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logf("[realtime] marshal event: %v", err)
		return
	}
	select {
	case b.hub.Broadcast <- payload:
	default:
		b.logf("[realtime] dropped event: type=%s order=%s", ev.Type, ev.OrderID)
	}
}
