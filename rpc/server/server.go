package server

import (
	"net"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("server")

// NewRPCServer creates a server that answers every request of the transport with handler.
// A nil handler echoes requests, prefixed with config.ReplyPrefix if set.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(config.Transport),
//		nil,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(config common.ServerConfig, transport transport.IRPCServerTransport, handler transport.ServerHandleFunc) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if handler == nil {
		handler = Echo
		if config.ReplyPrefix != "" {
			handler = Prefix(config.ReplyPrefix)
		}
	}

	metricSet := metrics.NewSet()

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:    config,
		transport: transport,
		handler:   Instrument(metricSet, "rpc", handler),
		metricSet: metricSet,
	}
}

// RPCServer connects a request handler to a server transport
type RPCServer struct {
	config    common.ServerConfig
	transport transport.IRPCServerTransport
	handler   transport.ServerHandleFunc
	metricSet *metrics.Set
}

// Serve creates the listener from the config and serves it until Close is called
func (s *RPCServer) Serve() error {
	s.transport.RegisterHandler(s.handler)
	return s.transport.Listen(s.config)
}

// ServeListener serves an existing listener until Close is called
func (s *RPCServer) ServeListener(listener net.Listener) error {
	s.transport.RegisterHandler(s.handler)
	return s.transport.Serve(listener)
}

// Close stops the transport
func (s *RPCServer) Close() error {
	return s.transport.Close()
}

// Metrics returns the request counters of the server
func (s *RPCServer) Metrics() *metrics.Set {
	return s.metricSet
}
