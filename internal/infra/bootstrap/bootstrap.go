// Package bootstrap implements join/rejoin: reading a seed host list,
// verifying it is usable, and fanning requests out to seeds concurrently
// until enough have accepted the local node or the remaining seeds can no
// longer reach that threshold. Grounded on the teacher's SWIM.Join
// (internal/infra/gossip/swim.go), generalized to the full bootstrap
// contract and fanned out with golang.org/x/sync/errgroup in place of the
// teacher's sequential for-loop.
package bootstrap

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ringmesh/ringmesh/internal/domain"
)

const (
	DefaultJoinSize        = 3
	DefaultMaxJoinDuration = 5 * time.Minute
	defaultHostListFile    = "./hosts.json"
)

// Config controls bootstrap timing and fan-out.
type Config struct {
	JoinSize        int
	MaxJoinDuration time.Duration
	HostListFile    string
}

// DefaultConfig returns the design's stated defaults.
func DefaultConfig() Config {
	return Config{
		JoinSize:        DefaultJoinSize,
		MaxJoinDuration: DefaultMaxJoinDuration,
		HostListFile:    defaultHostListFile,
	}
}

// Membership is the subset of membership.Membership bootstrap needs.
type Membership interface {
	Self() string
	Apply(domain.Change) (domain.MemberUpdate, bool)
	TransitionSelf(status domain.Status) domain.MemberUpdate
}

// Transport is the subset of domain.Transport bootstrap needs.
type Transport interface {
	Join(ctx context.Context, target string, req domain.JoinRequest) (domain.JoinResponse, error)
}

// Bootstrapper runs the join protocol for one node.
type Bootstrapper struct {
	cfg     Config
	app     string
	members Membership
	trans   Transport

	mu          sync.Mutex
	destroyed   bool
	incarnation int64
}

// New creates a Bootstrapper for the given app (cluster) name.
func New(cfg Config, app string, members Membership, trans Transport) *Bootstrapper {
	if cfg.JoinSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Bootstrapper{cfg: cfg, app: app, members: members, trans: trans}
}

// Destroy aborts any in-flight Bootstrap call with ErrDestroyedDuring.
func (b *Bootstrapper) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
}

func (b *Bootstrapper) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// ReadHostList resolves the seed list: an explicitly provided slice takes
// priority, then an explicit file path, then the default ./hosts.json.
func ReadHostList(explicit []string, path string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if path == "" {
		path = defaultHostListFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrHostListNotFound
		}
		return nil, err
	}
	var hosts []string
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// family classifies an address as "ip" or "hostname" so the local address
// and seed list can be checked for kinship before joining.
func family(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return "ip"
	}
	return "hostname"
}

// checkFamily verifies self shares an address family with at least one
// entry of hosts.
func checkFamily(self string, hosts []string) error {
	selfFamily := family(self)
	for _, h := range hosts {
		if family(h) == selfFamily {
			return nil
		}
	}
	return domain.ErrNoAddressFamilyMatch
}

// Bootstrap verifies the host list, admits the local member as alive, and
// runs Admin Join against up to joinSize seeds with retry/backoff until
// maxJoinDuration elapses.
func (b *Bootstrapper) Bootstrap(ctx context.Context, hosts []string) error {
	if len(hosts) == 0 {
		return domain.Wrap(domain.KindJoin, domain.CodeEmptyHostList, domain.ErrEmptyHostList)
	}
	if err := checkFamily(b.members.Self(), hosts); err != nil {
		return domain.Wrap(domain.KindJoin, domain.CodeNoAddressFamilyMatch, err)
	}

	selfUpdate := b.members.TransitionSelf(domain.StatusAlive)
	b.incarnation = selfUpdate.Member.Incarnation

	deadline := time.Now().Add(b.cfg.MaxJoinDuration)
	backoff := 100 * time.Millisecond
	for {
		if b.isDestroyed() {
			return domain.Wrap(domain.KindJoin, domain.CodeBootstrapDestroyedDuring, domain.ErrDestroyedDuring)
		}

		accepted, total, _ := b.adminJoin(ctx, hosts)
		threshold := b.cfg.JoinSize
		if total < threshold {
			threshold = total
		}
		if accepted >= threshold {
			return nil
		}
		if time.Now().After(deadline) {
			return domain.Wrap(domain.KindJoin, domain.CodeJoinTimedOut, domain.ErrJoinTimedOut)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
}

// adminJoin sends a single round of concurrent join requests to up to
// joinSize seed candidates (excluding self), merging every accepted
// response's membership snapshot into local Membership. It reports both
// the number accepted and the total number of eligible seeds in hosts, so
// the caller can recognize when the remaining seed pool can never reach
// joinSize — the case of a lone first node bootstrapping a new cluster
// off a host list containing only itself.
func (b *Bootstrapper) adminJoin(ctx context.Context, hosts []string) (accepted, total int, err error) {
	all := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" || h == b.members.Self() {
			continue
		}
		all = append(all, h)
	}
	total = len(all)

	candidates := all
	if len(candidates) > b.cfg.JoinSize {
		candidates = candidates[:b.cfg.JoinSize]
	}
	if len(candidates) == 0 {
		return 0, total, nil
	}

	attemptID := uuid.NewString()
	req := domain.JoinRequest{
		App:               b.app,
		Source:            b.members.Self(),
		IncarnationNumber: b.incarnation,
		AttemptID:         attemptID,
	}

	var mu sync.Mutex
	accepted = 0
	g, gctx := errgroup.WithContext(ctx)
	for _, seed := range candidates {
		seed := seed
		g.Go(func() error {
			resp, err := b.trans.Join(gctx, seed, req)
			if err != nil {
				log.Printf("bootstrap[%s]: join %s failed: %v", attemptID, seed, err)
				return nil // transient failure — caller retries with backoff
			}
			if resp.App != b.app {
				return nil
			}
			for _, mem := range resp.Membership {
				b.members.Apply(domain.Change{Address: mem.Address, Status: mem.Status, Incarnation: mem.Incarnation})
			}
			mu.Lock()
			accepted++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return accepted, total, nil
}

// AdminLeave sets local status to leave. It does not actively inform
// peers — they observe the departure through future gossip.
func (b *Bootstrapper) AdminLeave() {
	b.members.TransitionSelf(domain.StatusLeave)
}

// Rejoin bumps incarnation, flips back to alive, and runs Admin Join again.
func (b *Bootstrapper) Rejoin(ctx context.Context, hosts []string) error {
	b.mu.Lock()
	b.destroyed = false
	b.mu.Unlock()
	return b.Bootstrap(ctx, hosts)
}
