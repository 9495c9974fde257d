package common

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Default values
// --------------------------------------------------------------------------

const (
	DefaultPoolSize                = 1
	DefaultConnExpireSecond        = 60
	DefaultRefreshIntervalSecond   = 30
	DefaultProbeTimeoutMillisecond = 100
	DefaultRetryCount              = 5
	DefaultRebuildAttempts         = 3
	DefaultBackoffMillisecond      = 50
)

// --------------------------------------------------------------------------
// Address
// --------------------------------------------------------------------------

// Address identifies one cluster member by host and port
type Address struct {
	Host string
	Port int
}

// ParseAddress parses a "host:port" string
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > math.MaxUint16 {
		return Address{}, fmt.Errorf("invalid port in address %q", s)
	}
	return Address{Host: host, Port: port}, nil
}

// ParseAddresses parses a list of "host:port" strings, skipping empty entries
func ParseAddresses(list []string) ([]Address, error) {
	addrs := make([]Address, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// --------------------------------------------------------------------------
// Socket settings (shared by client and server)
// --------------------------------------------------------------------------

type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// Logging configuration
// --------------------------------------------------------------------------

type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string
	// File enables rotating file output when not empty
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// --------------------------------------------------------------------------
// Stub server configuration struct
// --------------------------------------------------------------------------

type ServerTransportConfig struct {
	Endpoint string
	SocketConf
	TCPConf
}

// ServerConfig holds the configuration of a wire-contract server
type ServerConfig struct {
	// Peers is the static membership advertised on the members route
	Peers []string

	TimeoutSecond int
	Transport     ServerTransportConfig
	Log           LogConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.Log.Level)
	if c.Log.File != "" {
		addField("Log File", c.Log.File)
	}

	addSection("Peers")
	for i, peer := range c.Peers {
		addField(strconv.Itoa(i+1), peer)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientTransportConfig struct {
	// Endpoints is the static host list, used for bootstrap and as last resort rebuild
	Endpoints []string
	// PoolSize is the fixed number of connections per server
	PoolSize int
	// ConnExpireSecond is the age after which a pooled connection is probed before reuse
	ConnExpireSecond int
	// RetryCount caps the number of attempts of a single call
	RetryCount int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	// TimeoutSecond is an optional i/o deadline, 0 keeps the OS defaults
	TimeoutSecond int
	// ProbeTimeoutMillisecond bounds the wait for a PONG
	ProbeTimeoutMillisecond int
	// RefreshIntervalSecond is the sleep between background membership refreshes
	RefreshIntervalSecond int
	// Ping enables a liveness probe on every borrow, not only for expired connections
	Ping bool
	// RebuildAttempts caps rebuilds from the static host list within a single call
	RebuildAttempts int
	// BackoffMillisecond is the initial backoff between rebuild attempts
	BackoffMillisecond int

	Transport ClientTransportConfig
	Log       LogConfig
}

// WithDefaults returns a copy of the config where all zero values are replaced by defaults
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.Transport.PoolSize <= 0 {
		c.Transport.PoolSize = DefaultPoolSize
	}
	if c.Transport.ConnExpireSecond <= 0 {
		c.Transport.ConnExpireSecond = DefaultConnExpireSecond
	}
	if c.Transport.RetryCount <= 0 {
		c.Transport.RetryCount = DefaultRetryCount
	}
	if c.RefreshIntervalSecond <= 0 {
		c.RefreshIntervalSecond = DefaultRefreshIntervalSecond
	}
	if c.ProbeTimeoutMillisecond <= 0 {
		c.ProbeTimeoutMillisecond = DefaultProbeTimeoutMillisecond
	}
	if c.RebuildAttempts <= 0 {
		c.RebuildAttempts = DefaultRebuildAttempts
	}
	if c.BackoffMillisecond <= 0 {
		c.BackoffMillisecond = DefaultBackoffMillisecond
	}
	return c
}

// Timeout returns the configured i/o deadline (0 if none)
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// ProbeTimeout returns how long a liveness probe waits for PONG
func (c *ClientConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMillisecond) * time.Millisecond
}

// RefreshInterval returns the background refresh interval
func (c *ClientConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSecond) * time.Second
}

// ConnExpire returns the expiry age of pooled connections
func (c *ClientConfig) ConnExpire() time.Duration {
	return time.Duration(c.Transport.ConnExpireSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Probe Timeout", fmt.Sprintf("%d ms", c.ProbeTimeoutMillisecond))
	addField("Refresh Interval", fmt.Sprintf("%d sec", c.RefreshIntervalSecond))
	addField("Liveness Check", strconv.FormatBool(c.Ping))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Rebuild Attempts", strconv.Itoa(c.RebuildAttempts))
	addField("Pool Size", strconv.Itoa(int(math.Max(1, float64(c.Transport.PoolSize)))))
	addField("Connection Expiry", fmt.Sprintf("%d sec", c.Transport.ConnExpireSecond))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
