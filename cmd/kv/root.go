package kv

import (
	"github.com/relock/sentinel/cmd/util"
	"github.com/relock/sentinel/rpc/client"
	"github.com/spf13/cobra"
)

var (
	dispatcher *client.Dispatcher

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on the cluster",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add cluster connection flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(ttlCmd)
	KeyValueCommands.AddCommand(expireCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the dispatcher
func setupKVClient(cmd *cobra.Command, _ []string) (err error) {
	dispatcher, err = util.NewDispatcher(cmd)
	return err
}

// closeKVClient closes the dispatcher
func closeKVClient(_ *cobra.Command, _ []string) error {
	if dispatcher == nil {
		return nil
	}
	return dispatcher.Close()
}
