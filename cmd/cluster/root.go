package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/relock/sentinel/cmd/util"
	"github.com/relock/sentinel/rpc/client"
	rpccluster "github.com/relock/sentinel/rpc/cluster"
	"github.com/relock/sentinel/rpc/common"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dispatcher *client.Dispatcher

	// CallCmd sends one request to the cluster
	CallCmd = &cobra.Command{
		Use:   "call [route] [key=value ...]",
		Short: "Send a request with keyword arguments to the cluster",
		Long: util.WrapString(`Send a request to the cluster and print the response. Arguments are given as key=value pairs,
values are converted to booleans or numbers where possible (use key:=json to pass a raw json value).`),
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: setupClient,
		PostRunE:          closeClient,
		RunE:              runCall,
	}

	// MembersCmd prints the membership as seen by the client
	MembersCmd = &cobra.Command{
		Use:               "members",
		Short:             "Refresh and print the cluster membership",
		PersistentPreRunE: setupClient,
		PostRunE:          closeClient,
		RunE:              runMembers,
	}

	// PingCmd probes every known member
	PingCmd = &cobra.Command{
		Use:               "ping",
		Short:             "Probe every cluster member with PING",
		PersistentPreRunE: setupClient,
		PostRunE:          closeClient,
		RunE:              runPing,
	}

	// StatsCmd prints the client metrics after sending a number of requests
	StatsCmd = &cobra.Command{
		Use:               "stats",
		Short:             "Send requests and print the client metrics in Prometheus format",
		PersistentPreRunE: setupClient,
		PostRunE:          closeClient,
		RunE:              runStats,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	for _, cmd := range []*cobra.Command{CallCmd, MembersCmd, PingCmd, StatsCmd} {
		util.SetupClientFlags(cmd)
	}

	key := "calls"
	StatsCmd.Flags().Int(key, 10, util.WrapString("Number of requests to send before the metrics are printed"))
	key = "route"
	StatsCmd.Flags().String(key, common.RouteMembers, util.WrapString("Route of the requests"))
}

// setupClient initializes the dispatcher
func setupClient(cmd *cobra.Command, _ []string) (err error) {
	dispatcher, err = util.NewDispatcher(cmd)
	return err
}

// closeClient closes the dispatcher
func closeClient(_ *cobra.Command, _ []string) error {
	if dispatcher == nil {
		return nil
	}
	return dispatcher.Close()
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func runCall(cmd *cobra.Command, args []string) error {
	kwargs, err := ParseKwargs(args[1:])
	if err != nil {
		return err
	}

	resp := dispatcher.Call(cmd.Context(), args[0], kwargs)
	if !resp.Available() {
		return fmt.Errorf("cluster unavailable: %v", resp.Err)
	}
	fmt.Println(resp)
	return nil
}

func runMembers(cmd *cobra.Command, _ []string) error {
	n := dispatcher.Refresh(cmd.Context(), nil)
	fmt.Printf("members: %d\n", n)
	for i, server := range dispatcher.Cluster().Servers() {
		fmt.Printf("  %-3d %-25s alive=%t pool=%d/%d\n", i+1, server, server.Alive(), server.Pool().Len(), server.Pool().Cap())
	}
	return nil
}

func runPing(_ *cobra.Command, _ []string) error {
	servers := dispatcher.Cluster().Servers()
	if len(servers) == 0 {
		return fmt.Errorf("no cluster member reachable")
	}

	type pingResult struct {
		server  *rpccluster.Server
		alive   bool
		latency time.Duration
		err     error
	}

	results := iter.Map(servers, func(s **rpccluster.Server) pingResult {
		server := *s
		start := time.Now()
		conn, err := server.Borrow()
		if err != nil {
			return pingResult{server: server, err: err}
		}
		alive := conn.Alive()
		return pingResult{server: server, alive: alive, latency: time.Since(start)}
	})

	for _, r := range results {
		if r.err != nil {
			fmt.Printf("%-25s error: %v\n", r.server, r.err)
			continue
		}
		fmt.Printf("%-25s alive=%t time=%s\n", r.server, r.alive, r.latency)
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	calls := viper.GetInt("calls")
	route := viper.GetString("route")

	for i := 0; i < calls; i++ {
		dispatcher.Call(cmd.Context(), route, nil)
	}

	stats := dispatcher.Stats()
	fmt.Printf("# dispatcher %s: %d calls, %d unavailable, %d faults, %d members\n",
		dispatcher.ID(), stats.Calls, stats.Unavailable, stats.Faults, stats.Members)
	dispatcher.WritePrometheus(os.Stdout)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseKwargs converts key=value (and key:=json) arguments into keyword arguments
func ParseKwargs(args []string) (map[string]any, error) {
	kwargs := make(map[string]any, len(args))
	for _, arg := range args {
		if key, raw, ok := strings.Cut(arg, ":="); ok {
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				return nil, fmt.Errorf("invalid json value for %s: %w", key, err)
			}
			kwargs[key] = value
			continue
		}

		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value)", arg)
		}
		kwargs[key] = coerce(value)
	}
	return kwargs, nil
}

// coerce converts a string argument into a boolean or number where possible
func coerce(value string) any {
	switch strings.ToLower(value) {
	case "true", "false":
		return cast.ToBool(value)
	}
	if i, err := cast.ToInt64E(value); err == nil {
		return i
	}
	if f, err := cast.ToFloat64E(value); err == nil {
		return f
	}
	return value
}
