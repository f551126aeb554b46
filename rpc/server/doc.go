// Package server implements the peer of the xio client: a server that answers every
// request it receives on a server transport with a handler.
//
// Key Components:
//
//   - NewRPCServer: connects a transport.ServerHandleFunc to a transport.IRPCServerTransport.
//     Without a handler the server echoes requests, prefixed with the configured reply prefix.
//
//   - Echo, Prefix: the built-in handlers.
//
//   - Instrument: wraps a handler with request and byte counters (VictoriaMetrics).
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080", TimeoutSecond: 5},
//	  LogLevel:  "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(config.Transport), nil)
//	go s.Serve()
//	defer s.Close()
package server
