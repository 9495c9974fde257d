package serve

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/relock/sentinel/cmd/util"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/server"
	"github.com/relock/sentinel/rpc/transport/tcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a stub server speaking the cluster wire protocol",
		Long: `Start a stub server speaking the cluster wire protocol. It answers the members route with the configured peers, records missing reports, serves the key/value routes from memory and echoes every other route.
The configuration can be set via command line flags or environment variables. The format of the environment variables is RELOCK_<flag> (e.g. RELOCK_ENDPOINT=0.0.0.0:8111)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8111", cmdUtil.WrapString("The address on which the server will listen"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of members (host:port) advertised on the members route. The server itself should be part of the list"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Idle timeout of client connections in seconds, 0 disables the timeout"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, 0 disables keepalive)"))

	cmdUtil.SetupLogFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse peers, invalid entries are rejected here and not on every members request
	serveCmdConfig.Peers = nil
	if peers := viper.GetString("peers"); peers != "" {
		addrs, err := common.ParseAddresses(strings.Split(peers, ","))
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			serveCmdConfig.Peers = append(serveCmdConfig.Peers, addr.String())
		}
	}

	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		},
	}
	serveCmdConfig.Log = cmdUtil.GetLogConfig()

	return common.InitLoggers(serveCmdConfig.Log)
}

// run starts the stub server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	serv := server.NewRPCServer(
		*serveCmdConfig,
		tcp.NewTCPServerTransport(),
		serializer.NewJSONSerializer(),
	)
	serv.RegisterMemoryStore()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		server.Logger.Infof("Received %s, shutting down", sig)
		_ = serv.Close()
	}()

	return serv.Serve()
}
