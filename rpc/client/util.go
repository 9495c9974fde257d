package client

import (
	"github.com/lni/dragonboat/v4/logger"
	"github.com/relock/sentinel/rpc/common"
	"github.com/relock/sentinel/rpc/serializer"
	"github.com/relock/sentinel/rpc/transport/tcp"
)

var (
	Logger = logger.GetLogger("rpc")
)

// NewTCPDispatcher creates a dispatcher speaking the json payload encoding over TCP
func NewTCPDispatcher(config common.ClientConfig) (*Dispatcher, error) {
	return NewDispatcher(config, tcp.NewTCPClientConnector(), serializer.NewJSONSerializer())
}
