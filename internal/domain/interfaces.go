package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Transport abstracts the wire between this node and a peer. The default
// implementation (internal/infra/transport) dials these over HTTP; tests use
// an in-memory implementation so the detector and bootstrap packages never
// need a real socket.
type Transport interface {
	Ping(ctx context.Context, target string, req PingRequest) (PingResponse, error)
	PingReq(ctx context.Context, target string, req PingReqRequest) (PingReqResponse, error)
	Join(ctx context.Context, target string, req JoinRequest) (JoinResponse, error)
	Leave(ctx context.Context, target string, req LeaveRequest) (LeaveResponse, error)

	// Serve starts accepting inbound requests on the transport's local
	// address, dispatching them to the given ProtocolHandlers. It blocks
	// until ctx is cancelled.
	Serve(ctx context.Context, handlers ProtocolHandlers) error
}

// ProtocolHandlers is the server-side counterpart of Transport: the set of
// handlers a transport implementation dispatches inbound requests to.
type ProtocolHandlers interface {
	HandlePing(ctx context.Context, from string, req PingRequest) (PingResponse, error)
	HandlePingReq(ctx context.Context, from string, req PingReqRequest) (PingReqResponse, error)
	HandleJoin(ctx context.Context, from string, req JoinRequest) (JoinResponse, error)
	HandleLeave(ctx context.Context, from string, req LeaveRequest) (LeaveResponse, error)
}

// Proxy abstracts request forwarding to the owner of a key, so a Node can
// remain agnostic of the underlying HTTP/RPC mechanism used to relay a
// caller's request to the correct member.
type Proxy interface {
	// Forward sends body to target and returns the raw response bytes.
	Forward(ctx context.Context, target string, method string, path string, body []byte) ([]byte, int, error)
}

// StatsProvider abstracts metrics emission so the gossip/ring/node packages
// can be unit-tested with a no-op provider instead of a live Prometheus
// registry.
type StatsProvider interface {
	IncrCounter(name string, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	ObserveTiming(name string, seconds float64, labels map[string]string)
}

// NopStats is the null StatsProvider injected wherever a caller passes nil.
type NopStats struct{}

func (NopStats) IncrCounter(string, map[string]string)            {}
func (NopStats) SetGauge(string, float64, map[string]string)      {}
func (NopStats) ObserveTiming(string, float64, map[string]string) {}

// StatsHook is a named provider registered on a Node and invoked by
// GetStats, letting an embedding application surface arbitrary state
// alongside the node's own counters.
type StatsHook interface {
	GetStats() map[string]any
}
