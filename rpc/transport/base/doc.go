// Package base provides the stream socket foundation of the transport layer,
// implementing the core of the asynchronous client and the server independent of the
// specific network protocol (TCP, Unix sockets). Protocol packages extend it with
// connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with sessionID and requestID tracking
//   - Asynchronous correlation of replies: every connection has one reader goroutine
//     that reports replies to the bound transport.EventSink
//   - Reporting every pending request exactly once if a connection goes away
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation. ConnectAsync dials in a goroutine,
//     SendAsync writes one frame and returns, replies and failures arrive as events.
//
//   - serverTransport: Core server implementation that accepts connections and
//     passes every request to the registered handler.
//
// Frame Format:
//
//	| sessionID (8, big endian) | requestID (8, big endian) | length (4, big endian) | payload |
//
//	The client uses the connection handle as sessionID, the server echoes both ids.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers, reducing
//     GC pressure and memory allocations.
//
//   - Concurrent Handling: The server handles up to WorkersPerConn requests of one
//     connection concurrently, replies may therefore be reordered.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to one connection are serialized by a
//	mutex, the pending request table is a concurrent map.
package base
