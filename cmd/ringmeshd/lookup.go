package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringmesh/ringmesh/internal/infra/transport"
	"github.com/ringmesh/ringmesh/internal/node"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup KEY",
	Short: "join the cluster just long enough to report the owner of KEY",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

// joinEphemeral boots a short-lived node solely to obtain a converged
// membership/ring view from the cluster at addr, runs fn against it, and
// tears it down. Grounded on the same Bootstrap/Destroy lifecycle a long-
// running ringmeshd uses — the CLI is just a one-shot client of it.
func joinEphemeral(addr string, fn func(n *node.Node)) error {
	cfg := node.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.JoinSize = 1
	cfg.MaxJoinDuration = 5 * time.Second

	n := node.New(cfg, transport.New(), node.NewHTTPProxy(cfg.ProxyReqTimeout), node.NoopStats{})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxJoinDuration)
	defer cancel()

	if err := n.Bootstrap(ctx, []string{addr}); err != nil {
		return fmt.Errorf("join %s: %w", addr, err)
	}
	defer n.Destroy()

	fn(n)
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	key := args[0]

	return joinEphemeral(addr, func(n *node.Node) {
		fmt.Println(n.Lookup(key))
	})
}
