package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/ValentinKolb/xio/rpc/common"
)

// Errors shared by all transports
var (
	// ErrTransportClosed is returned by operations on a closed transport
	ErrTransportClosed = errors.New("transport closed")
	// ErrUnknownHandle is returned for handles that were never issued or are already gone
	ErrUnknownHandle = errors.New("unknown connection handle")
	// ErrNotConnected is returned by SendAsync before the connection is established
	ErrNotConnected = errors.New("connection not established")
	// ErrDisconnected is reported for requests that were pending when a connection was closed locally
	ErrDisconnected = errors.New("connection closed")
	// ErrServerClosed is returned by Serve and Listen after Close
	ErrServerClosed = errors.New("server closed")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the id of the client session and a request and returns a response
type ServerHandleFunc func(sessionID uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC server transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called for every received request
	RegisterHandler(handler ServerHandleFunc)
	// Listen creates a listener from the config and serves it until Close is called
	Listen(config common.ServerConfig) error
	// Serve accepts connections on an existing listener until Close is called
	Serve(listener net.Listener) error
	// Close stops accepting connections and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// Handle identifies one connection of a client transport
type Handle uint64

// EventKind is the kind of a client transport event
type EventKind uint8

const (
	// EventConnected: the connection of Handle is established and accepts sends
	EventConnected EventKind = iota + 1
	// EventConnectFailed: the connection of Handle could not be established, Err holds the cause
	EventConnectFailed
	// EventResponse: the reply to RequestID arrived, Data holds the payload
	EventResponse
	// EventSendFailed: RequestID will never get a reply, Err holds the cause
	EventSendFailed
	// EventDisconnected: the connection of Handle is gone. Err is nil if Disconnect or Close was called
	// or the peer closed the connection while no request was pending
	EventDisconnected
)

// String returns the string representation of an EventKind
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect_failed"
	case EventResponse:
		return "response"
	case EventSendFailed:
		return "send_failed"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is a completion or readiness notification of a client transport
type Event struct {
	Kind      EventKind
	Handle    Handle
	RequestID uint64
	// Data is owned by the receiver of the event
	Data []byte
	Err  error
}

// EventSink receives the events of a client transport. It is called from transport
// goroutines, never from inside a call to the transport, and may block to apply
// backpressure. EventConnected is the first and EventDisconnected the last event of
// a connection, every request is reported at most once in between.
type EventSink func(ev Event)

// IRPCClientTransport is the interface for asynchronous RPC client transports.
// No method waits for the network beyond writing a single frame, all outcomes
// are reported to the bound EventSink.
type IRPCClientTransport interface {
	// Bind sets the sink that receives all events. It must be called before ConnectAsync.
	Bind(sink EventSink)
	// ConnectAsync starts to connect to endpoint and returns the handle of the new connection.
	// The outcome is reported as EventConnected or EventConnectFailed.
	ConnectAsync(endpoint string) (Handle, error)
	// SendAsync transmits data as request requestID on the connection. The reply is reported
	// as EventResponse, a failure after SendAsync returned as EventSendFailed. The data slice
	// is not retained after SendAsync returns.
	SendAsync(h Handle, requestID uint64, data []byte) error
	// Disconnect closes one connection. Pending requests are reported as EventSendFailed
	// followed by EventDisconnected.
	Disconnect(h Handle) error
	// Close closes all connections and waits for the transport goroutines to exit.
	// The sink must not block forever while Close runs.
	Close() error
}
