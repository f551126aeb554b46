// Package rpc provides asynchronous request/response messaging between a client and
// an echo style server. Requests are written into pre-allocated pool messages, sent
// over a session and answered through callbacks on a single event reactor goroutine.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, session event names and reasons, and logging.
//
//   - transport: Event driven network abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP, a cmux based multiplexer and an in-process loopback).
//
//   - client: The EventReactor, Sessions and the Callbacks interface through which
//     replies, message errors and session events are delivered.
//
//   - server: The peer of the client, it answers every request with a handler.
package rpc
