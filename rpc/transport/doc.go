// Package transport defines the interfaces and abstractions for RPC communication
// between the client core and an echo style server. It provides a common contract
// that all transport implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - An asynchronous client contract: connecting, sending and closing never wait
//     for a reply, completions are pushed to an EventSink
//   - Correlation of replies by request id, scoped to one connection (Handle)
//   - Enabling multiple transport implementations (TCP, Unix sockets, HTTP, in-process)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transports. Replaces polling for
//     readiness with events (connected, connect failed, response, send failed, disconnected).
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receive requests and pass them to a handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
