// Events for the Node facade: ready, changed (membership), ringChanged.
// Grounded on hashicorp/serf's delegate-callback event style
// (other_examples/.../serf-events.go), simplified to direct callback
// registration since ringmesh has no need for serf's coalescing window.
package node

import "sync"

// Event identifies which Node lifecycle/state event fired.
type Event string

const (
	EventReady       Event = "ready"
	EventChanged     Event = "changed"
	EventRingChanged Event = "ringChanged"
)

// EventHandler receives an Event and an optional payload (a
// domain.MemberUpdate for "changed", a []string of servers for
// "ringChanged", nil for "ready").
type EventHandler func(evt Event, payload any)

// emitter is a simple multi-listener callback registry. Grounded on
// hashicorp/serf's delegate dispatch, minus the coalescing window — every
// accepted Membership/Ring mutation is forwarded immediately, since
// ringmesh's event volume does not call for serf's batching heuristic.
type emitter struct {
	mu        sync.RWMutex
	listeners []EventHandler
}

func (e *emitter) On(fn EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *emitter) fire(evt Event, payload any) {
	e.mu.RLock()
	listeners := append([]EventHandler(nil), e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(evt, payload)
	}
}
