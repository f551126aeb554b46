package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint, timeout 0 means no limit
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientTransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection represents a single net connection
type clientConnection struct {
	handle   transport.Handle
	endpoint string
	conn     net.Conn   // nil until established
	connMu   sync.Mutex // protects conn and serializes writes
	closing  atomic.Bool
	pending  *xsync.MapOf[uint64, struct{}] // request ids waiting for a reply
	parent   *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector   IClientConnector
	config      common.ClientTransportConfig
	sink        transport.EventSink
	connections *xsync.MapOf[transport.Handle, *clientConnection]
	nextHandle  atomic.Uint64
	closed      atomic.Bool
	wg          sync.WaitGroup // dial and reader goroutines
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector, config common.ClientTransportConfig) transport.IRPCClientTransport {
	return &clientTransport{
		connector:   connector,
		config:      config,
		connections: xsync.NewMapOf[transport.Handle, *clientConnection](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Bind(sink transport.EventSink) {
	t.sink = sink
}

func (t *clientTransport) ConnectAsync(endpoint string) (transport.Handle, error) {
	if t.closed.Load() {
		return 0, transport.ErrTransportClosed
	}
	if t.sink == nil {
		return 0, fmt.Errorf("no event sink bound")
	}

	c := &clientConnection{
		handle:   transport.Handle(t.nextHandle.Add(1)),
		endpoint: endpoint,
		pending:  xsync.NewMapOf[uint64, struct{}](),
		parent:   t,
	}
	t.connections.Store(c.handle, c)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		c.dial()
	}()

	return c.handle, nil
}

func (t *clientTransport) SendAsync(h transport.Handle, requestID uint64, data []byte) error {
	c, ok := t.connections.Load(h)
	if !ok {
		return transport.ErrUnknownHandle
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return transport.ErrNotConnected
	}
	if c.closing.Load() {
		return transport.ErrDisconnected
	}

	// register before writing, the reply may arrive before writeFrame returns
	c.pending.Store(requestID, struct{}{})

	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.pending.Delete(requestID)
			return fmt.Errorf("failed to set write deadline for %s: %w", c.endpoint, err)
		}
	}

	if err := writeFrame(c.conn, uint64(h), requestID, data); err != nil {
		c.pending.Delete(requestID)
		return fmt.Errorf("failed to write request %d to %s: %w", requestID, c.endpoint, err)
	}
	return nil
}

func (t *clientTransport) Disconnect(h transport.Handle) error {
	c, ok := t.connections.Load(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	c.close()
	return nil
}

func (t *clientTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.connections.Range(func(_ transport.Handle, c *clientConnection) bool {
		c.close()
		return true
	})

	t.wg.Wait()
	Logger.Debugf("Closed %s client transport", t.connector.GetName())
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// emit forwards an event to the bound sink
func (t *clientTransport) emit(ev transport.Event) {
	t.sink(ev)
}

// dial establishes the connection and starts the reader
func (c *clientConnection) dial() {
	t := c.parent
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	conn, err := t.connector.Connect(c.endpoint, timeout)
	if err == nil {
		if upErr := t.connector.UpgradeConnection(conn, t.config); upErr != nil {
			conn.Close()
			conn, err = nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, upErr)
		}
	} else {
		err = fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err == nil {
		c.connMu.Lock()
		if c.closing.Load() {
			// disconnected while dialing
			conn.Close()
			err = transport.ErrDisconnected
		} else {
			c.conn = conn
		}
		c.connMu.Unlock()
	}

	if err != nil {
		t.connections.Delete(c.handle)
		Logger.Warningf("Connection %d to %s failed: %v", c.handle, c.endpoint, err)
		t.emit(transport.Event{Kind: transport.EventConnectFailed, Handle: c.handle, Err: err})
		return
	}

	Logger.Infof("Connected to %s (connection %d) using %s transport", c.endpoint, c.handle, t.connector.GetName())
	t.emit(transport.Event{Kind: transport.EventConnected, Handle: c.handle})

	c.readResponses()
}

// close closes the connection, the reader reports the outstanding requests
func (c *clientConnection) close() {
	c.connMu.Lock()
	if c.closing.Load() {
		c.connMu.Unlock()
		return
	}
	c.closing.Store(true)
	conn := c.conn
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// readResponses reads responses in a loop and reports them to the sink
func (c *clientConnection) readResponses() {
	t := c.parent

	for {
		// nil buffer: every payload is freshly allocated and handed to the sink
		_, requestID, data, err := readFrame(c.conn, nil)
		if err != nil {
			c.fail(err)
			return
		}

		if _, found := c.pending.LoadAndDelete(requestID); !found {
			Logger.Warningf("Received response for unknown request ID %d on connection %d", requestID, c.handle)
			continue
		}

		t.emit(transport.Event{Kind: transport.EventResponse, Handle: c.handle, RequestID: requestID, Data: data})
	}
}

// fail reports every pending request and the loss of the connection
func (c *clientConnection) fail(readErr error) {
	t := c.parent
	t.connections.Delete(c.handle)

	// once closing is set under the lock no SendAsync registers new requests
	c.connMu.Lock()
	local := c.closing.Load()
	c.closing.Store(true)
	c.connMu.Unlock()

	cause := transport.ErrDisconnected
	var disconnectErr error
	switch {
	case local:
	case errors.Is(readErr, io.EOF) && c.pending.Size() == 0:
		// closed by the peer between two frames with nothing outstanding
		Logger.Infof("Connection %d closed by %s", c.handle, c.endpoint)
		c.conn.Close()
	default:
		cause = fmt.Errorf("connection to %s lost: %w", c.endpoint, readErr)
		disconnectErr = cause
		Logger.Warningf("Connection %d to %s failed: %v", c.handle, c.endpoint, readErr)
		c.conn.Close()
	}

	c.pending.Range(func(requestID uint64, _ struct{}) bool {
		c.pending.Delete(requestID)
		t.emit(transport.Event{Kind: transport.EventSendFailed, Handle: c.handle, RequestID: requestID, Err: cause})
		return true
	})

	t.emit(transport.Event{Kind: transport.EventDisconnected, Handle: c.handle, Err: disconnectErr})
}
