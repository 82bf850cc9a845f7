// Config for a Node, loaded from TOML via BurntSushi/toml, matching the
// teacher's ~/.tutu/config.toml convention (internal/daemon/config_test.go).
package node

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ringmesh/ringmesh/internal/domain"
	"github.com/ringmesh/ringmesh/internal/infra/bootstrap"
	"github.com/ringmesh/ringmesh/internal/infra/detector"
	"github.com/ringmesh/ringmesh/internal/infra/dissemination"
	"github.com/ringmesh/ringmesh/internal/infra/ring"
	"github.com/ringmesh/ringmesh/internal/infra/suspicion"
)

// Config controls every tunable named across the design document.
type Config struct {
	App          string `toml:"app"`
	ListenAddr   string `toml:"listen_addr"`
	HostsFile    string `toml:"hosts_file"`
	IncarnDBPath string `toml:"incarnation_db_path"`

	RingReplicas int `toml:"ring_replicas"`

	DissemK int `toml:"dissemination_k"`

	SuspicionTimeout time.Duration `toml:"suspicion_timeout"`

	PingTimeout     time.Duration `toml:"ping_timeout"`
	PingReqTimeout  time.Duration `toml:"ping_req_timeout"`
	ProxyReqTimeout time.Duration `toml:"proxy_req_timeout"`
	MinPeriod       time.Duration `toml:"min_protocol_period"`
	IndirectK       int           `toml:"indirect_k"`

	JoinSize        int           `toml:"join_size"`
	MaxJoinDuration time.Duration `toml:"max_join_duration"`
}

// DefaultConfig returns the design's stated defaults for every component.
func DefaultConfig() Config {
	return Config{
		App:              "ringmesh",
		ListenAddr:       "127.0.0.1:7946",
		HostsFile:        "./hosts.json",
		IncarnDBPath:     "./ringmesh.db",
		RingReplicas:     ring.DefaultReplicas,
		DissemK:          dissemination.DefaultK,
		SuspicionTimeout: suspicion.DefaultTimeout,
		PingTimeout:      detector.DefaultPingTimeout,
		PingReqTimeout:   detector.DefaultPingReqTimeout,
		ProxyReqTimeout:  DefaultProxyReqTimeout,
		MinPeriod:        detector.DefaultMinPeriod,
		IndirectK:        detector.DefaultK,
		JoinSize:         bootstrap.DefaultJoinSize,
		MaxJoinDuration:  bootstrap.DefaultMaxJoinDuration,
	}
}

// LoadConfig reads TOML config from path, applying DefaultConfig for any
// field the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("node: load config: %w", err)
	}
	return cfg, nil
}

// Validate rejects a config missing its cluster namespace or carrying a
// local address that is not of the host:port form.
func (c Config) Validate() error {
	if c.App == "" {
		return domain.Wrap(domain.KindConfiguration, "missing-app", errors.New("app is required"))
	}
	if c.ListenAddr == "" {
		return domain.Wrap(domain.KindConfiguration, "missing-host-port", errors.New("listen_addr is required"))
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return domain.Wrap(domain.KindConfiguration, "malformed-host-port", err)
	}
	return nil
}

func (c Config) detectorConfig() detector.Config {
	return detector.Config{
		PingTimeout:    c.PingTimeout,
		PingReqTimeout: c.PingReqTimeout,
		MinPeriod:      c.MinPeriod,
		K:              c.IndirectK,
	}
}

func (c Config) bootstrapConfig() bootstrap.Config {
	return bootstrap.Config{
		JoinSize:        c.JoinSize,
		MaxJoinDuration: c.MaxJoinDuration,
		HostListFile:    c.HostsFile,
	}
}
