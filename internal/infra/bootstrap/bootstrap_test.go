package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ringmesh/ringmesh/internal/domain"
	"github.com/ringmesh/ringmesh/internal/infra/membership"
)

type stubTransport struct {
	responses map[string]domain.JoinResponse
	errs      map[string]error
}

func (s *stubTransport) Join(ctx context.Context, target string, req domain.JoinRequest) (domain.JoinResponse, error) {
	if err, ok := s.errs[target]; ok {
		return domain.JoinResponse{}, err
	}
	return s.responses[target], nil
}

func TestCheckFamily_MixedFamiliesRejected(t *testing.T) {
	err := checkFamily("127.0.0.1:7946", []string{"hostname-a:7946", "hostname-b:7946"})
	if !errors.Is(err, domain.ErrNoAddressFamilyMatch) {
		t.Errorf("err = %v, want ErrNoAddressFamilyMatch", err)
	}
}

func TestCheckFamily_MatchingFamilyAccepted(t *testing.T) {
	err := checkFamily("127.0.0.1:7946", []string{"10.0.0.1:7946", "hostname-b:7946"})
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestBootstrap_EmptyHostListFails(t *testing.T) {
	m := membership.New("self:7946")
	b := New(DefaultConfig(), "myapp", m, &stubTransport{})

	err := b.Bootstrap(context.Background(), nil)
	if !errors.Is(err, domain.ErrEmptyHostList) {
		t.Errorf("err = %v, want ErrEmptyHostList", err)
	}
}

func TestBootstrap_SucceedsWhenSeedsAccept(t *testing.T) {
	m := membership.New("self:7946")
	trans := &stubTransport{
		responses: map[string]domain.JoinResponse{
			"seed1:7946": {App: "myapp", Membership: []domain.Member{{Address: "seed1:7946", Status: domain.StatusAlive}}},
			"seed2:7946": {App: "myapp", Membership: []domain.Member{{Address: "seed2:7946", Status: domain.StatusAlive}}},
		},
	}
	cfg := DefaultConfig()
	cfg.JoinSize = 2
	b := New(cfg, "myapp", m, trans)

	err := b.Bootstrap(context.Background(), []string{"seed1:7946", "seed2:7946"})
	if err != nil {
		t.Fatalf("Bootstrap error: %v", err)
	}
	self, _ := m.Get("self:7946")
	if self.Status != domain.StatusAlive {
		t.Errorf("self.Status = %s, want alive", self.Status)
	}
}

func TestBootstrap_DestroyedDuringAborts(t *testing.T) {
	m := membership.New("self:7946")
	trans := &stubTransport{errs: map[string]error{"seed1:7946": errors.New("unreachable")}}
	cfg := DefaultConfig()
	cfg.MaxJoinDuration = time.Second
	b := New(cfg, "myapp", m, trans)
	b.Destroy()

	err := b.Bootstrap(context.Background(), []string{"seed1:7946"})
	if !errors.Is(err, domain.ErrDestroyedDuring) {
		t.Errorf("err = %v, want ErrDestroyedDuring", err)
	}
}

func TestAdminLeave_SetsLeaveStatus(t *testing.T) {
	m := membership.New("self:7946")
	b := New(DefaultConfig(), "myapp", m, &stubTransport{})
	b.AdminLeave()

	self, _ := m.Get("self:7946")
	if self.Status != domain.StatusLeave {
		t.Errorf("self.Status = %s, want leave", self.Status)
	}
}

func TestReadHostList_PrefersExplicitOverFile(t *testing.T) {
	hosts, err := ReadHostList([]string{"a:1", "b:1"}, "/nonexistent/hosts.json")
	if err != nil {
		t.Fatalf("ReadHostList error: %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("hosts = %v, want 2 entries", hosts)
	}
}

func TestReadHostList_MissingFileReturnsNamedError(t *testing.T) {
	_, err := ReadHostList(nil, "/nonexistent/hosts.json")
	if !errors.Is(err, domain.ErrHostListNotFound) {
		t.Errorf("err = %v, want ErrHostListNotFound", err)
	}
}
