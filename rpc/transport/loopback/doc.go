// Package loopback provides an in-process implementation of transport.IRPCClientTransport.
//
// Requests are answered synchronously by a transport.ServerHandleFunc (Echo by default),
// but every event is delivered asynchronously by a single worker goroutine, in the order
// it was produced. This keeps the contract of the network transports (the sink is never
// called from inside a transport call) while making timing controllable:
//
//   - Hold / Release: keep responses back to observe state while requests are in flight
//   - DropResponses: never answer, so requests stay pending until the connection goes away
//   - RefuseEndpoint: make connects to an endpoint fail
//   - Fail: simulate the loss of an established connection
package loopback
