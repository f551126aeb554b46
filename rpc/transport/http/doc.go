// Package http implements an HTTP-based transport layer for the RPC system. It provides
// concrete implementations of the transport interfaces defined in the parent package.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. A connection is a logical
//     session on top of the pooled connections of net/http. Every SendAsync posts the
//     request to {endpoint}/{handle} in its own goroutine and reports the reply or the
//     failure as an event. Disconnect cancels the requests of the connection.
//
//   - httpServerTransport: Implements IRPCServerTransport, setting up an HTTP server
//     that passes the body of every POST /{session} request to the handler and writes
//     the returned bytes as response body.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. Replies to
//	different requests of one connection may be reported in any order.
//
// In debug mode (LogLevel "debug") the server logs every request with its duration.
package http
