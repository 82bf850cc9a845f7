// Package protocol implements the server-side SWIM message handlers: join,
// ping, ping-req, and leave. Every handler applies inbound piggyback changes
// first, then performs its specific work, grounded on the teacher's
// handleMessage/handlePing/handlePingReq/handleAck dispatch in
// internal/infra/gossip/swim.go.
package protocol

import (
	"context"
	"log"
	"time"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// relayPingTimeout bounds the on-behalf-of ping a ping-req handler issues;
// it matches the detector's direct-ping timeout so a relay never takes
// longer to give up on the target than the original prober would have.
const relayPingTimeout = 1500 * time.Millisecond

// Membership is the subset of membership.Membership the handlers need.
type Membership interface {
	Self() string
	Get(address string) (domain.Member, bool)
	Update(changes []domain.Change) []domain.MemberUpdate
	Apply(domain.Change) (domain.MemberUpdate, bool)
	Members() []domain.Member
	Checksum() uint64
}

// Dissemination is the subset of dissemination.Buffer the handlers need.
type Dissemination interface {
	GetChanges(peerChecksum uint64, peerAddress string) []domain.Change
}

// Transport is the subset of domain.Transport needed to issue the
// on-behalf-of ping a ping-req handler performs.
type Transport interface {
	Ping(ctx context.Context, target string, req domain.PingRequest) (domain.PingResponse, error)
}

// Handlers serves the four inbound protocol requests for one node. The app
// name identifies which cluster this node belongs to; join requests from a
// different app are rejected.
type Handlers struct {
	app     string
	members Membership
	dissem  Dissemination
	trans   Transport
	stats   domain.StatsProvider
}

// New creates the server-side Handlers. stats may be nil.
func New(app string, members Membership, dissem Dissemination, trans Transport, stats domain.StatsProvider) *Handlers {
	if stats == nil {
		stats = domain.NopStats{}
	}
	return &Handlers{app: app, members: members, dissem: dissem, trans: trans, stats: stats}
}

// HandlePing applies inbound changes, then replies with a fresh batch of
// buffered changes for the requesting peer.
func (h *Handlers) HandlePing(ctx context.Context, from string, req domain.PingRequest) (domain.PingResponse, error) {
	h.stats.IncrCounter("ping.recv", nil)
	h.members.Update(req.Changes)
	return domain.PingResponse{
		Checksum: h.members.Checksum(),
		Changes:  h.dissem.GetChanges(req.Checksum, req.Source),
		Source:   h.members.Self(),
	}, nil
}

// HandlePingReq applies inbound changes, issues a direct ping to Target on
// the requester's behalf, and reports back whether it succeeded.
func (h *Handlers) HandlePingReq(ctx context.Context, from string, req domain.PingReqRequest) (domain.PingReqResponse, error) {
	h.stats.IncrCounter("ping-req.recv", nil)
	h.members.Update(req.Changes)

	pctx, cancel := context.WithTimeout(ctx, relayPingTimeout)
	defer cancel()
	resp, err := h.trans.Ping(pctx, req.Target, domain.PingRequest{
		Checksum: h.members.Checksum(),
		Source:   h.members.Self(),
	})
	ok := err == nil
	if ok {
		h.members.Update(resp.Changes)
	}
	return domain.PingReqResponse{
		Target:  req.Target,
		Ok:      ok,
		Changes: h.dissem.GetChanges(req.Checksum, req.Source),
		Source:  h.members.Self(),
	}, nil
}

// HandleJoin rejects self-joins and cross-app joins, admits the joiner as
// alive, and returns a full membership snapshot.
func (h *Handlers) HandleJoin(ctx context.Context, from string, req domain.JoinRequest) (domain.JoinResponse, error) {
	h.stats.IncrCounter("join.recv", nil)
	if req.Source == h.members.Self() {
		return domain.JoinResponse{}, domain.Wrap(domain.KindJoin, domain.CodeInvalidJoinSource, domain.ErrInvalidJoinSource)
	}
	if req.App != h.app {
		return domain.JoinResponse{}, domain.Wrap(domain.KindJoin, domain.CodeInvalidJoinApp, domain.ErrInvalidJoinApp)
	}

	h.members.Apply(domain.Change{Address: req.Source, Status: domain.StatusAlive, Incarnation: req.IncarnationNumber, Source: h.members.Self()})
	log.Printf("protocol: join attempt %s from %s accepted", req.AttemptID, req.Source)

	return domain.JoinResponse{
		App:         h.app,
		Source:      h.members.Self(),
		Coordinator: h.members.Self(),
		Membership:  h.members.Members(),
	}, nil
}

// HandleLeave acknowledges a voluntary departure. No state change is
// required here — the leaving node's own subsequent gossip carries its
// status change outward.
func (h *Handlers) HandleLeave(ctx context.Context, from string, req domain.LeaveRequest) (domain.LeaveResponse, error) {
	return domain.LeaveResponse{Ok: true}, nil
}
