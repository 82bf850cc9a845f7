// Command ringmeshd starts a ringmesh node from a TOML config file, prints
// ready/changed/ringChanged events to stdout, and exposes a one-shot lookup
// subcommand for querying a running cluster's hash ring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ringmeshd",
	Short: "ringmesh cluster membership and hash-ring daemon",
	Long: `ringmeshd runs a single node of a ringmesh cluster: it gossips
membership with its peers via SWIM-style failure detection and maintains a
consistent hash ring over the alive members.`,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(membersCmd)

	startCmd.Flags().StringP("config", "c", "", "path to a TOML node config file")
	startCmd.Flags().StringSliceP("hosts", "H", nil, "seed hosts to join (overrides the config's hosts file)")

	lookupCmd.Flags().StringP("addr", "a", "127.0.0.1:7946", "address of a running ringmeshd to query")
	membersCmd.Flags().StringP("addr", "a", "127.0.0.1:7946", "address of a running ringmeshd to query")
}
