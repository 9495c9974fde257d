package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/relock/sentinel/rpc/client"
	"github.com/relock/sentinel/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. RELOCK_SERVICE_ENDPOINTS)
	EnvPrefix = "relock"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the cluster connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "service-endpoints"
	cmd.PersistentFlags().String(key, "127.0.0.1:8111", WrapString("Comma-separated list of cluster members (host:port). Used to bootstrap the cluster and as last resort when all known members are gone"))

	key = "service-pool"
	cmd.PersistentFlags().Int(key, common.DefaultPoolSize, WrapString("Number of connections per cluster member"))

	key = "service-ping"
	cmd.PersistentFlags().Bool(key, false, WrapString("Probe every connection with PING before it is used, not only expired ones"))

	key = "service-refresh"
	cmd.PersistentFlags().Int(key, common.DefaultRefreshIntervalSecond, WrapString("Interval of the background membership refresh (in seconds)"))

	key = "service-expire"
	cmd.PersistentFlags().Int(key, common.DefaultConnExpireSecond, WrapString("Age after which a pooled connection is probed before it is used again (in seconds)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 0, WrapString("I/O timeout in seconds, 0 keeps the OS defaults"))

	key = "probe-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultProbeTimeoutMillisecond, WrapString("How long a liveness probe waits for PONG (in milliseconds)"))

	key = "retries"
	cmd.PersistentFlags().Int(key, common.DefaultRetryCount, WrapString("How many times a call is tried before it is reported as unavailable"))

	key = "rebuild-attempts"
	cmd.PersistentFlags().Int(key, common.DefaultRebuildAttempts, WrapString("How many times an empty cluster is rebuilt from the endpoints within one call"))

	key = "backoff"
	cmd.PersistentFlags().Int(key, common.DefaultBackoffMillisecond, WrapString("Initial backoff between rebuild attempts (in milliseconds, doubled every attempt)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, 0 disables keepalive)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, 0 keeps the OS default)"))

	SetupLogFlags(cmd)
}

// SetupLogFlags adds the logging flags to a command
func SetupLogFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-file"
	cmd.PersistentFlags().String(key, "", WrapString("Write logs to this file (rotated) instead of stdout"))
}

// InitConfig initializes configuration from .env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetLogConfig reads the logging configuration from viper
func GetLogConfig() common.LogConfig {
	return common.LogConfig{
		Level:      viper.GetString("log-level"),
		File:       viper.GetString("log-file"),
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		TimeoutSecond:           viper.GetInt("timeout"),
		ProbeTimeoutMillisecond: viper.GetInt("probe-timeout"),
		RefreshIntervalSecond:   viper.GetInt("service-refresh"),
		Ping:                    viper.GetBool("service-ping"),
		RebuildAttempts:         viper.GetInt("rebuild-attempts"),
		BackoffMillisecond:      viper.GetInt("backoff"),
		Transport: common.ClientTransportConfig{
			Endpoints:        strings.Split(viper.GetString("service-endpoints"), ","),
			PoolSize:         viper.GetInt("service-pool"),
			ConnExpireSecond: viper.GetInt("service-expire"),
			RetryCount:       viper.GetInt("retries"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
		Log: GetLogConfig(),
	}

	return conf
}

// NewDispatcher binds the flags of the command, initializes logging and creates a TCP dispatcher
func NewDispatcher(cmd *cobra.Command) (*client.Dispatcher, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	config := GetClientConfig()
	if err := common.InitLoggers(config.Log); err != nil {
		return nil, err
	}
	return client.NewTCPDispatcher(*config)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
