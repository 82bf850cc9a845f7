package detector

import (
	"context"
	"testing"
	"time"

	"github.com/ringmesh/ringmesh/internal/domain"
	"github.com/ringmesh/ringmesh/internal/infra/dissemination"
	"github.com/ringmesh/ringmesh/internal/infra/membership"
)

// fakeTransport lets tests script Ping/PingReq outcomes per target without a
// real socket, matching the in-memory transport the design calls for.
type fakeTransport struct {
	pingErr   map[string]error
	pingReqOk map[string]bool
}

func (f *fakeTransport) Ping(ctx context.Context, target string, req domain.PingRequest) (domain.PingResponse, error) {
	if err, ok := f.pingErr[target]; ok && err != nil {
		return domain.PingResponse{}, err
	}
	return domain.PingResponse{}, nil
}

func (f *fakeTransport) PingReq(ctx context.Context, target string, req domain.PingReqRequest) (domain.PingReqResponse, error) {
	ok := f.pingReqOk[req.Target]
	return domain.PingReqResponse{Target: req.Target, Ok: ok}, nil
}

func (f *fakeTransport) Join(ctx context.Context, target string, req domain.JoinRequest) (domain.JoinResponse, error) {
	return domain.JoinResponse{}, nil
}

func (f *fakeTransport) Leave(ctx context.Context, target string, req domain.LeaveRequest) (domain.LeaveResponse, error) {
	return domain.LeaveResponse{}, nil
}

func (f *fakeTransport) Serve(ctx context.Context, handlers domain.ProtocolHandlers) error {
	return nil
}

func setup(t *testing.T) (*membership.Membership, *dissemination.Buffer) {
	t.Helper()
	m := membership.New("self:7946")
	m.Apply(domain.Change{Address: "peer:7946", Status: domain.StatusAlive, Incarnation: 0})
	d := dissemination.New(1, nil)
	return m, d
}

func TestRunPeriod_SuccessfulPingKeepsMemberAlive(t *testing.T) {
	m, d := setup(t)
	trans := &fakeTransport{pingErr: map[string]error{}}
	det := New(DefaultConfig(), m, d, trans, m.Checksum, nil)

	det.RunPeriod(context.Background())

	mem, _ := m.Get("peer:7946")
	if mem.Status != domain.StatusAlive {
		t.Errorf("status = %s, want alive", mem.Status)
	}
}

func TestRunPeriod_FailedPingAndPingReqMarksSuspect(t *testing.T) {
	m, d := setup(t)
	m.Apply(domain.Change{Address: "relay:7946", Status: domain.StatusAlive, Incarnation: 0})
	trans := &fakeTransport{
		pingErr:   map[string]error{"peer:7946": errTimeout{}},
		pingReqOk: map[string]bool{"peer:7946": false},
	}
	det := New(DefaultConfig(), m, d, trans, m.Checksum, nil)

	for i := 0; i < 2; i++ { // round-robin may probe the relay first
		det.RunPeriod(context.Background())
	}

	mem, _ := m.Get("peer:7946")
	if mem.Status != domain.StatusSuspect {
		t.Errorf("status = %s, want suspect", mem.Status)
	}
}

func TestRunPeriod_IndirectSuccessKeepsAlive(t *testing.T) {
	m, d := setup(t)
	m.Apply(domain.Change{Address: "relay:7946", Status: domain.StatusAlive, Incarnation: 0})
	trans := &fakeTransport{
		pingErr:   map[string]error{"peer:7946": errTimeout{}},
		pingReqOk: map[string]bool{"peer:7946": true},
	}
	det := New(DefaultConfig(), m, d, trans, m.Checksum, nil)

	for i := 0; i < 2; i++ {
		det.RunPeriod(context.Background())
	}

	mem, _ := m.Get("peer:7946")
	if mem.Status != domain.StatusAlive {
		t.Errorf("status = %s, want alive", mem.Status)
	}
}

func TestRunPeriod_NoRelaysMarksSuspectDirectly(t *testing.T) {
	m, d := setup(t)
	trans := &fakeTransport{pingErr: map[string]error{"peer:7946": errTimeout{}}}
	det := New(DefaultConfig(), m, d, trans, m.Checksum, nil)

	det.RunPeriod(context.Background())

	mem, _ := m.Get("peer:7946")
	if mem.Status != domain.StatusSuspect {
		t.Errorf("status = %s, want suspect when the ping fails and no relay exists", mem.Status)
	}
}

func TestMedianRTT_EmptyIsZero(t *testing.T) {
	m, d := setup(t)
	trans := &fakeTransport{}
	det := New(DefaultConfig(), m, d, trans, m.Checksum, nil)
	if det.MedianRTT() != 0 {
		t.Errorf("MedianRTT() = %v, want 0", det.MedianRTT())
	}
}

func TestNextPeriod_ClampedBelowByMinPeriod(t *testing.T) {
	m, d := setup(t)
	det := New(DefaultConfig(), m, d, &fakeTransport{}, m.Checksum, nil)

	det.recordRTT(time.Millisecond)
	if got := det.nextPeriod(); got != DefaultMinPeriod {
		t.Errorf("nextPeriod() = %v, want clamp to %v", got, DefaultMinPeriod)
	}

	det.recordRTT(time.Second)
	if got := det.nextPeriod(); got < DefaultMinPeriod {
		t.Errorf("nextPeriod() = %v, must never drop below minProtocolPeriod", got)
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "timeout" }
