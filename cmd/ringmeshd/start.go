package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ringmesh/ringmesh/internal/infra/incarnstore"
	"github.com/ringmesh/ringmesh/internal/infra/transport"
	"github.com/ringmesh/ringmesh/internal/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "join the cluster and run the gossip/ring protocol until stopped",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	hosts, _ := cmd.Flags().GetStringSlice("hosts")

	cfg, err := node.LoadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := incarnstore.Open(cfg.IncarnDBPath)
	if err != nil {
		return fmt.Errorf("open incarnation store: %w", err)
	}

	n := node.New(cfg, transport.New(), node.NewHTTPProxy(cfg.ProxyReqTimeout), node.PromStats{})
	n.WithIncarnationStore(store)

	nextIncarnation, err := store.NextOnRestart(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resume incarnation: %w", err)
	}
	n.SeedIncarnation(nextIncarnation)

	n.On(func(evt node.Event, payload any) {
		fmt.Fprintf(os.Stdout, "[%s] %s %v\n", cfg.ListenAddr, evt, payload)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Bootstrap(ctx, hosts); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer n.Destroy()

	<-ctx.Done()
	fmt.Fprintln(os.Stdout, "shutting down")
	return nil
}
