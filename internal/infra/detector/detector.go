// Package detector runs the SWIM protocol-period loop: pick a target, ping
// it directly, fall back to indirect ping-req through k relays, and declare
// suspect on total failure. Split out of the teacher's gossip.SWIM.probeCycle
// (internal/infra/gossip/swim.go) and generalized with a round-robin shuffle
// iterator and short-circuit-on-first-success ping-req fan-out grounded on
// dkmccandless/swim's tick/timeout loop.
package detector

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringmesh/ringmesh/internal/domain"
)

const (
	DefaultPingTimeout    = 1500 * time.Millisecond
	DefaultPingReqTimeout = 5000 * time.Millisecond
	DefaultMinPeriod      = 200 * time.Millisecond
	DefaultK              = 3
	rttWindow             = 8
)

// Config controls the detector's timing and fan-out parameters.
type Config struct {
	PingTimeout    time.Duration
	PingReqTimeout time.Duration
	MinPeriod      time.Duration
	K              int
}

// DefaultConfig returns the design's stated defaults.
func DefaultConfig() Config {
	return Config{
		PingTimeout:    DefaultPingTimeout,
		PingReqTimeout: DefaultPingReqTimeout,
		MinPeriod:      DefaultMinPeriod,
		K:              DefaultK,
	}
}

// Membership is the subset of membership.Membership the detector needs.
// Declared locally to avoid detector importing the concrete membership
// package's full surface, matching the teacher's habit of depending on
// narrow interfaces across infra packages.
type Membership interface {
	Self() string
	Pingable() []string
	RandomPingable(n int, exclude []string) []domain.Member
	Get(address string) (domain.Member, bool)
	Update(changes []domain.Change) []domain.MemberUpdate
	Apply(domain.Change) (domain.MemberUpdate, bool)
}

// Dissemination is the subset of dissemination.Buffer the detector needs.
type Dissemination interface {
	GetChanges(peerChecksum uint64, peerAddress string) []domain.Change
}

// Detector runs the protocol-period loop against one target per period.
type Detector struct {
	cfg      Config
	members  Membership
	dissem   Dissemination
	trans    domain.Transport
	checksum func() uint64
	stats    domain.StatsProvider

	mu       sync.Mutex
	roster   []string
	pos      int
	peerSums map[string]uint64
	rtts     []time.Duration
	rttPos   int
	isPing   atomic.Bool
}

// New creates a Detector. stats may be nil.
func New(cfg Config, members Membership, dissem Dissemination, trans domain.Transport, checksum func() uint64, stats domain.StatsProvider) *Detector {
	if cfg.PingTimeout <= 0 {
		cfg = DefaultConfig()
	}
	if stats == nil {
		stats = domain.NopStats{}
	}
	return &Detector{
		cfg:      cfg,
		members:  members,
		dissem:   dissem,
		trans:    trans,
		checksum: checksum,
		stats:    stats,
		peerSums: make(map[string]uint64),
	}
}

// Run drives the protocol-period loop until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(d.cfg.MinPeriod) + 1))
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		d.RunPeriod(ctx)
		next := d.nextPeriod()
		elapsed := time.Since(start)
		wait := next - elapsed
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// RunPeriod executes exactly one protocol period synchronously: selecting a
// target, pinging it, and falling back to indirect probing on failure. It is
// exported so tests (and callers that want deterministic control) can drive
// periods one at a time instead of through Run's ticker loop.
func (d *Detector) RunPeriod(ctx context.Context) {
	target := d.nextTarget()
	if target == "" {
		return
	}

	d.isPing.Store(true)
	defer d.isPing.Store(false)

	rtt, ok := d.pingDirect(ctx, target)
	if ok {
		d.recordRTT(rtt)
		d.markAlive(target)
		return
	}

	if d.pingIndirect(ctx, target) {
		d.markAlive(target)
		return
	}

	d.markSuspect(target)
}

// nextTarget advances a round-robin iterator over a shuffled roster of
// pingable (alive, non-local) members, reshuffling on exhaustion.
func (d *Detector) nextTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := d.members.Pingable()
	if len(live) == 0 {
		d.roster = nil
		return ""
	}

	if d.pos >= len(d.roster) || !sameSet(d.roster, live) {
		d.roster = append([]string(nil), live...)
		rand.Shuffle(len(d.roster), func(i, j int) { d.roster[i], d.roster[j] = d.roster[j], d.roster[i] })
		d.pos = 0
	}

	t := d.roster[d.pos]
	d.pos++
	return t
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// peerSum reports the last checksum target declared in a response, so the
// piggyback batch for an already-converged peer comes back empty.
func (d *Detector) peerSum(target string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerSums[target]
}

func (d *Detector) setPeerSum(target string, sum uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peerSums[target] = sum
}

func (d *Detector) pingDirect(ctx context.Context, target string) (time.Duration, bool) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.PingTimeout)
	defer cancel()

	start := time.Now()
	req := domain.PingRequest{
		Checksum: d.checksum(),
		Changes:  d.dissem.GetChanges(d.peerSum(target), target),
		Source:   d.members.Self(),
	}
	d.stats.IncrCounter("ping.send", nil)
	resp, err := d.trans.Ping(cctx, target, req)
	if err != nil {
		return 0, false
	}
	rtt := time.Since(start)
	d.stats.ObserveTiming("ping", rtt.Seconds(), nil)
	d.setPeerSum(target, resp.Checksum)
	d.members.Update(resp.Changes)
	return rtt, true
}

// pingIndirect asks k random other alive members to relay a ping, returning
// true if any relay reports the target reachable.
func (d *Detector) pingIndirect(ctx context.Context, target string) bool {
	relays := d.members.RandomPingable(d.cfg.K, []string{target})
	if len(relays) == 0 {
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.PingReqTimeout)
	defer cancel()

	type result struct {
		ok      bool
		changes []domain.Change
	}
	results := make(chan result, len(relays))
	start := time.Now()
	for _, relay := range relays {
		relay := relay.Address
		go func() {
			req := domain.PingReqRequest{
				Target:   target,
				Checksum: d.checksum(),
				Changes:  d.dissem.GetChanges(d.peerSum(relay), relay),
				Source:   d.members.Self(),
			}
			d.stats.IncrCounter("ping-req.send", nil)
			resp, err := d.trans.PingReq(cctx, relay, req)
			if err != nil {
				results <- result{ok: false}
				return
			}
			results <- result{ok: resp.Ok, changes: resp.Changes}
		}()
	}

	for i := 0; i < len(relays); i++ {
		select {
		case r := <-results:
			d.members.Update(r.changes)
			if r.ok {
				d.stats.ObserveTiming("ping-req", time.Since(start).Seconds(), nil)
				return true
			}
		case <-cctx.Done():
			d.stats.ObserveTiming("ping-req", time.Since(start).Seconds(), nil)
			return false
		}
	}
	d.stats.ObserveTiming("ping-req", time.Since(start).Seconds(), nil)
	return false
}

// markAlive restates target alive at its current incarnation. Apply rejects
// the restatement when target is suspect at the same incarnation — only the
// member itself may refute a suspicion, by bumping its incarnation.
func (d *Detector) markAlive(target string) {
	mem, ok := d.members.Get(target)
	if !ok {
		return
	}
	d.members.Apply(domain.Change{Address: target, Status: domain.StatusAlive, Incarnation: mem.Incarnation, Source: d.members.Self()})
}

func (d *Detector) markSuspect(target string) {
	mem, ok := d.members.Get(target)
	if !ok {
		return
	}
	d.members.Apply(domain.Change{Address: target, Status: domain.StatusSuspect, Incarnation: mem.Incarnation, Source: d.members.Self()})
}

func (d *Detector) recordRTT(rtt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rtts) < rttWindow {
		d.rtts = append(d.rtts, rtt)
	} else {
		d.rtts[d.rttPos%rttWindow] = rtt
	}
	d.rttPos++
}

// MedianRTT returns the median of the last rttWindow recorded round trips,
// or zero if none have been recorded yet.
func (d *Detector) MedianRTT() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rtts) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), d.rtts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// nextPeriod computes max(minProtocolPeriod, 2*observedMedianRTT).
func (d *Detector) nextPeriod() time.Duration {
	period := 2 * d.MedianRTT()
	if period < d.cfg.MinPeriod {
		return d.cfg.MinPeriod
	}
	return period
}

// IsPinging reports whether a probe is currently in flight — the direct
// ping or its ping-req fallback, for the whole protocol period — matching
// the design's isPinging guard.
func (d *Detector) IsPinging() bool { return d.isPing.Load() }
