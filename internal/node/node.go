// Package node implements the Node Facade: the single entry point an
// embedding application uses to bootstrap into a cluster, look up the owner
// of a key, and route (or handle locally) a keyed request. Grounded on the
// teacher's api.Server (internal/api/server.go) for the
// constructor-injects-collaborators, Handler()/lifecycle shape, and on
// hashicorp/serf's delegate-callback events (other_examples) for the
// ready/changed/ringChanged event surface.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/ringmesh/ringmesh/internal/domain"
	"github.com/ringmesh/ringmesh/internal/infra/bootstrap"
	"github.com/ringmesh/ringmesh/internal/infra/detector"
	"github.com/ringmesh/ringmesh/internal/infra/dissemination"
	"github.com/ringmesh/ringmesh/internal/infra/incarnstore"
	"github.com/ringmesh/ringmesh/internal/infra/membership"
	"github.com/ringmesh/ringmesh/internal/infra/protocol"
	"github.com/ringmesh/ringmesh/internal/infra/ring"
	"github.com/ringmesh/ringmesh/internal/infra/suspicion"
	"github.com/ringmesh/ringmesh/internal/infra/transport"
)

// Node is the facade composing membership, dissemination, suspicion,
// detector, bootstrap, ring, transport, and stats into one lifecycle.
type Node struct {
	cfg   Config
	stats domain.StatsProvider
	emitter

	members   *membership.Membership
	dissem    *dissemination.Buffer
	suspect   *suspicion.TimerSet
	detect    *detector.Detector
	boot      *bootstrap.Bootstrapper
	ringState *ring.Ring
	handlers  *protocol.Handlers
	trans     domain.Transport
	proxy     domain.Proxy
	incarn    *incarnstore.Store

	mu           sync.Mutex
	running      bool
	destroyed    bool
	cancel       context.CancelFunc
	runCtx       context.Context
	detectCancel context.CancelFunc

	hooksMu sync.Mutex
	hooks   map[string]domain.StatsHook
}

// New constructs a Node without starting it. Call Bootstrap to join a
// cluster and begin gossiping.
func New(cfg Config, trans domain.Transport, proxy domain.Proxy, stats domain.StatsProvider) *Node {
	if stats == nil {
		stats = NoopStats{}
	}
	members := membership.New(cfg.ListenAddr)
	dissem := dissemination.New(cfg.DissemK, members.Checksum)
	ringState := ring.New(cfg.RingReplicas)

	n := &Node{
		cfg:       cfg,
		stats:     stats,
		members:   members,
		dissem:    dissem,
		ringState: ringState,
		trans:     trans,
		proxy:     proxy,
		hooks:     make(map[string]domain.StatsHook),
	}

	n.suspect = suspicion.NewTimerSet(cfg.SuspicionTimeout, n.onSuspicionFault)
	n.detect = detector.New(cfg.detectorConfig(), members, dissem, trans, members.Checksum, stats)
	n.handlers = protocol.New(cfg.App, members, dissem, trans, stats)
	n.boot = bootstrap.New(cfg.bootstrapConfig(), cfg.App, members, trans)

	members.OnUpdate(n.onMemberUpdate)
	ringState.OnChanged(func(servers []string) { n.fire(EventRingChanged, servers) })

	return n
}

// onMemberUpdate is the single fan-out point for every accepted membership
// change: it records the change for dissemination, keeps the ring in sync
// with the alive set, arms or disarms the suspicion timer, persists the
// local incarnation, and forwards the event to registered listeners.
func (n *Node) onMemberUpdate(u domain.MemberUpdate) {
	n.dissem.Record(domain.Change{
		Address:     u.Member.Address,
		Status:      u.Member.Status,
		Incarnation: u.Member.Incarnation,
		Source:      u.Source,
	})
	n.dissem.Recompute(len(n.members.Members()))

	if u.Member.Status == domain.StatusAlive {
		n.ringState.AddServer(u.Member.Address)
	} else {
		n.ringState.RemoveServer(u.Member.Address)
	}

	// The suspicion subprotocol runs on every node that believes a member
	// suspect, whether the belief came from this node's own probe or from
	// gossip. Any transition out of suspect disarms the timer.
	if u.Member.Address != n.Whoami() {
		if u.Member.Status == domain.StatusSuspect {
			n.suspect.Start(u.Member.Address)
		} else {
			n.suspect.Cancel(u.Member.Address)
		}
	}

	n.stats.IncrCounter("membership-update", map[string]string{"type": string(u.Type)})
	n.stats.SetGauge("num-members", float64(len(n.members.Members())), nil)
	n.stats.SetGauge("ring-size", float64(n.ringState.Size()), nil)

	if n.incarn != nil && u.Member.Address == n.Whoami() {
		_ = n.incarn.Bump(u.Member.Address, u.Member.Incarnation)
	}

	n.fire(EventChanged, u)
}

func (n *Node) onSuspicionFault(address string) {
	mem, ok := n.members.Get(address)
	if !ok || mem.Status != domain.StatusSuspect {
		return
	}
	n.members.MakeFaulty(address, mem.Incarnation)
}

// Bootstrap joins the cluster named by cfg.App using hosts (or the
// configured hosts file when hosts is nil), then starts serving the
// transport and running the detector loop. Fires "ready" once bootstrap
// succeeds.
func (n *Node) Bootstrap(ctx context.Context, hosts []string) error {
	if err := n.cfg.Validate(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if n.destroyed {
		n.mu.Unlock()
		return domain.ErrNodeDestroyed
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.runCtx = runCtx
	n.running = true
	n.mu.Unlock()

	fail := func(err error) error {
		cancel()
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return err
	}

	seeds, err := bootstrap.ReadHostList(hosts, n.cfg.HostsFile)
	if err != nil {
		return fail(err)
	}

	// Serve before joining: two nodes bootstrapping off each other must be
	// able to accept each other's join requests while their own are pending.
	serveCtx := transport.WithBindAddr(runCtx, n.cfg.ListenAddr)
	go n.trans.Serve(serveCtx, n.handlers)

	if err := n.boot.Bootstrap(runCtx, seeds); err != nil {
		return fail(err)
	}

	n.startDetector()

	n.fire(EventReady, nil)
	return nil
}

// startDetector launches the protocol-period loop under its own cancel so
// AdminLeave can stop gossip without tearing down the transport.
func (n *Node) startDetector() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.runCtx == nil || n.detectCancel != nil {
		return
	}
	dctx, dcancel := context.WithCancel(n.runCtx)
	n.detectCancel = dcancel
	go n.detect.Run(dctx)
}

func (n *Node) stopDetector() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.detectCancel != nil {
		n.detectCancel()
		n.detectCancel = nil
	}
}

// Destroy stops gossip, suspicion timers, and the detector loop, and tears
// down the transport. Idempotent.
func (n *Node) Destroy() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return nil
	}
	n.destroyed = true
	n.boot.Destroy()
	n.suspect.StopAll()
	if n.cancel != nil {
		n.cancel()
	}
	n.running = false
	if n.incarn != nil {
		return n.incarn.Close()
	}
	return nil
}

// Whoami returns this node's own address.
func (n *Node) Whoami() string { return n.members.Self() }

// Lookup returns the address of the member owning key, or Whoami() if the
// ring has no servers yet.
func (n *Node) Lookup(key string) string {
	n.stats.IncrCounter("lookup", nil)
	addr, ok := n.ringState.Lookup(key)
	if !ok {
		return n.Whoami()
	}
	return addr
}

// HandleOrProxy reports whether the caller should handle key locally
// (true), or hands the request off to the proxy collaborator and returns
// false.
func (n *Node) HandleOrProxy(ctx context.Context, key string, method, path string, body []byte) (bool, []byte, int, error) {
	owner := n.Lookup(key)
	if owner == n.Whoami() {
		return true, nil, 0, nil
	}
	data, status, err := n.proxy.Forward(ctx, owner, method, path, body)
	return false, data, status, err
}

// ProxyResult is one remote owner's response from HandleOrProxyAll.
type ProxyResult struct {
	Owner  string
	Body   []byte
	Status int
	Err    error
}

// HandleOrProxyAll groups keys by owner, invokes localHandler once for the
// group of keys owned locally, and issues one proxy request per remote
// owner, gathering every response.
func (n *Node) HandleOrProxyAll(ctx context.Context, keys []string, localHandler func(keys []string) ([]byte, error), method, path string, body []byte) (local []byte, remote []ProxyResult, err error) {
	groups := make(map[string][]string)
	for _, k := range keys {
		owner := n.Lookup(k)
		groups[owner] = append(groups[owner], k)
	}

	self := n.Whoami()
	if localKeys, ok := groups[self]; ok {
		local, err = localHandler(localKeys)
		if err != nil {
			return nil, nil, fmt.Errorf("node: local handler: %w", err)
		}
		delete(groups, self)
	}

	for owner := range groups {
		data, status, ferr := n.proxy.Forward(ctx, owner, method, path, body)
		remote = append(remote, ProxyResult{Owner: owner, Body: data, Status: status, Err: ferr})
	}
	return local, remote, nil
}

// Members returns the current membership snapshot.
func (n *Node) Members() []domain.Member { return n.members.Members() }

// RingServers returns the current ring's server set.
func (n *Node) RingServers() []string { return n.ringState.Servers() }

// AdminLeave voluntarily leaves the cluster: local status flips to leave,
// the detector loop and suspicion timers stop, and peers learn of the
// departure through whatever gossip still reaches them. The transport keeps
// serving so this node can still answer pings while it drains.
func (n *Node) AdminLeave() {
	n.stopDetector()
	n.boot.AdminLeave()
	n.suspect.StopAll()
}

// Rejoin re-enables suspicion, runs Admin Join again after a prior leave
// (bumping the local incarnation past any rumor of the departure), and
// restarts the detector loop.
func (n *Node) Rejoin(ctx context.Context, hosts []string) error {
	n.suspect.Reenable()
	if err := n.boot.Rejoin(ctx, hosts); err != nil {
		return err
	}
	n.startDetector()
	return nil
}

// RegisterStatsHook adds a named provider surfaced through GetStats.
// Registering the same name twice is a configuration error.
func (n *Node) RegisterStatsHook(name string, hook domain.StatsHook) error {
	n.hooksMu.Lock()
	defer n.hooksMu.Unlock()
	if _, dup := n.hooks[name]; dup {
		return domain.Wrap(domain.KindConfiguration, domain.CodeDuplicateStatsHook, domain.ErrDuplicateStatsHook)
	}
	n.hooks[name] = hook
	return nil
}

// GetStats gathers every registered hook's snapshot alongside the node's
// own membership and ring state.
func (n *Node) GetStats() map[string]any {
	out := map[string]any{
		"address":     n.Whoami(),
		"num-members": len(n.members.Members()),
		"ring-size":   n.ringState.Size(),
		"checksum":    n.members.Checksum(),
	}
	n.hooksMu.Lock()
	defer n.hooksMu.Unlock()
	for name, hook := range n.hooks {
		out[name] = hook.GetStats()
	}
	return out
}

// WithIncarnationStore attaches durable incarnation persistence, used by
// cmd/ringmeshd to survive restarts without an incarnation regression.
func (n *Node) WithIncarnationStore(s *incarnstore.Store) { n.incarn = s }

// SeedIncarnation overrides the local member's starting incarnation. Must
// be called before Bootstrap; typically fed by incarnstore.NextOnRestart so
// a restarted process never reuses an incarnation a peer has already seen.
func (n *Node) SeedIncarnation(incarnation int64) { n.members.SeedIncarnation(incarnation) }
