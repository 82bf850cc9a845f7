package domain

// ─── Wire Messages ──────────────────────────────────────────────────────────
// These DTOs are shared by the Transport interface and its implementations;
// they live in domain (rather than infra/protocol) so Transport can reference
// them without infra/protocol importing domain in both directions.

// PingRequest is a direct probe sent to a target member.
type PingRequest struct {
	Checksum uint64   `json:"checksum"`
	Changes  []Change `json:"changes,omitempty"`
	Source   string   `json:"source"`
}

// PingResponse is the target's reply to a direct probe.
type PingResponse struct {
	Checksum uint64   `json:"checksum"`
	Changes  []Change `json:"changes,omitempty"`
	Source   string   `json:"source"`
}

// PingReqRequest asks an intermediary to relay a ping to Target on the
// requester's behalf.
type PingReqRequest struct {
	Target   string   `json:"target"`
	Checksum uint64   `json:"checksum"`
	Changes  []Change `json:"changes,omitempty"`
	Source   string   `json:"source"`
}

// PingReqResponse carries back whether the relayed ping to Target succeeded.
type PingReqResponse struct {
	Target  string   `json:"target"`
	Ok      bool     `json:"ok"`
	Changes []Change `json:"changes,omitempty"`
	Source  string   `json:"source"`
}

// JoinRequest is sent by a joining node to a seed. AttemptID correlates one
// fan-out round's requests across seeds in logs on either side; it carries
// no protocol meaning of its own.
type JoinRequest struct {
	App               string `json:"app"`
	Source            string `json:"source"`
	IncarnationNumber int64  `json:"incarnationNumber"`
	AttemptID         string `json:"attemptId,omitempty"`
}

// JoinResponse carries back the seed's current membership/ring snapshot.
type JoinResponse struct {
	App         string   `json:"app"`
	Source      string   `json:"source"`
	Coordinator string   `json:"coordinator"`
	Membership  []Member `json:"membership"`
}

// LeaveRequest announces a voluntary departure. The handler is a no-op
// acknowledgement per design — dissemination, not this RPC, carries the
// leave status outward.
type LeaveRequest struct {
	Source string `json:"source"`
}

// LeaveResponse acknowledges a LeaveRequest.
type LeaveResponse struct {
	Ok bool `json:"ok"`
}
