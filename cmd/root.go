package cmd

import (
	"fmt"
	"os"

	"github.com/relock/sentinel/cmd/cluster"
	"github.com/relock/sentinel/cmd/kv"
	"github.com/relock/sentinel/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.4.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "fault-tolerant client for the relock service cluster",
		Long: fmt.Sprintf(`sentinel (v%s)

A fault-tolerant TCP client for the relock service cluster. It keeps a pool
of connections per member, discovers members, removes dead ones and retries
requests transparently.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sentinel",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sentinel v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(cluster.CallCmd)
	RootCmd.AddCommand(cluster.MembersCmd)
	RootCmd.AddCommand(cluster.PingCmd)
	RootCmd.AddCommand(cluster.StatsCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
