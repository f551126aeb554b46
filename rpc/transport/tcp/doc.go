// Package tcp implements the TCP socket based transport of the RPC system. It provides
// concrete implementations of the base package's connector interfaces.
//
// This package builds on the base package's transport functionality, inheriting its
// asynchronous client, framing and server buffer reuse. See the base package
// documentation for the underlying mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both connectors apply the SocketConf and TCPConf options (no delay, keep alive,
// linger, kernel buffer sizes) to every connection.
//
// The default server buffer size is set to 512 KB, which provides good performance
// for typical workloads, but can be customized for specific use cases.
package tcp
