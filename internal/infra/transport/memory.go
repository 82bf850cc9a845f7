package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// Memory is an in-process domain.Transport that dispatches directly to a
// registered peer's domain.ProtocolHandlers, with no socket involved. It
// lets detector/bootstrap/protocol tests exercise multi-node scenarios
// without binding real ports, the same role the teacher's swim_test.go
// fills with real loopback UDP sockets but without the flakiness of actual
// I/O.
type Memory struct {
	mu    sync.RWMutex
	peers map[string]domain.ProtocolHandlers
	self  string
}

// NewMemory creates a Memory transport for the node at self, sharing the
// given peer registry with every other node in the simulated cluster. Pass
// a fresh map from NewMemoryNetwork for the first node, then the same map
// to every subsequent node.
func NewMemory(self string, shared map[string]domain.ProtocolHandlers) *Memory {
	return &Memory{peers: shared, self: self}
}

// NewMemoryNetwork creates the shared peer registry backing a simulated
// cluster of Memory transports.
func NewMemoryNetwork() map[string]domain.ProtocolHandlers {
	return make(map[string]domain.ProtocolHandlers)
}

// Attach registers addr's handlers in the shared registry, making it
// reachable from every Memory transport sharing that registry.
func (m *Memory) Attach(addr string, handlers domain.ProtocolHandlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[addr] = handlers
}

func (m *Memory) lookup(target string) (domain.ProtocolHandlers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.peers[target]
	if !ok {
		return nil, fmt.Errorf("transport: %w: no peer registered at %s", domain.ErrTransportClosed, target)
	}
	return h, nil
}

// Ping implements domain.Transport.
func (m *Memory) Ping(ctx context.Context, target string, req domain.PingRequest) (domain.PingResponse, error) {
	h, err := m.lookup(target)
	if err != nil {
		return domain.PingResponse{}, err
	}
	return h.HandlePing(ctx, m.self, req)
}

// PingReq implements domain.Transport.
func (m *Memory) PingReq(ctx context.Context, target string, req domain.PingReqRequest) (domain.PingReqResponse, error) {
	h, err := m.lookup(target)
	if err != nil {
		return domain.PingReqResponse{}, err
	}
	return h.HandlePingReq(ctx, m.self, req)
}

// Join implements domain.Transport.
func (m *Memory) Join(ctx context.Context, target string, req domain.JoinRequest) (domain.JoinResponse, error) {
	h, err := m.lookup(target)
	if err != nil {
		return domain.JoinResponse{}, err
	}
	return h.HandleJoin(ctx, m.self, req)
}

// Leave implements domain.Transport.
func (m *Memory) Leave(ctx context.Context, target string, req domain.LeaveRequest) (domain.LeaveResponse, error) {
	h, err := m.lookup(target)
	if err != nil {
		return domain.LeaveResponse{}, err
	}
	return h.HandleLeave(ctx, m.self, req)
}

// Serve attaches self's handlers to the shared registry and blocks until
// ctx is cancelled. Memory has no socket to bind — handlers are reached
// directly through the shared peer map.
func (m *Memory) Serve(ctx context.Context, handlers domain.ProtocolHandlers) error {
	m.Attach(m.self, handlers)
	<-ctx.Done()
	return nil
}
