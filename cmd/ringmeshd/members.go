package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringmesh/ringmesh/internal/node"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "print the membership snapshot observed after joining the cluster",
	RunE:  runMembers,
}

func runMembers(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	return joinEphemeral(addr, func(n *node.Node) {
		for _, m := range n.Members() {
			fmt.Printf("%-22s %-8s incarnation=%d\n", m.Address, m.Status, m.Incarnation)
		}
	})
}
