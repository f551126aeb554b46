// Package mux serves the HTTP transport and the framed TCP transport on one listener.
//
// Incoming connections are classified by their first bytes with cmux: connections
// that start with an HTTP/1 request line are passed to the http server transport,
// all others to the tcp server transport. Both use the same handler, so clients
// of either kind talk to the same server.
package mux
