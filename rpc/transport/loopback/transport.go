package loopback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/eapache/queue"
	"github.com/puzpuzpuz/xsync/v3"
)

// Echo is the default handler, it replies with the request
func Echo(_ uint64, req []byte) []byte {
	return req
}

// conn is one in-process connection
type conn struct {
	endpoint string
	pending  *xsync.MapOf[uint64, struct{}] // dropped requests that still wait for a reply
}

// Transport is an in-process client transport. Requests are answered by a handler
// on the calling goroutine, events are delivered in order by one worker goroutine.
// Tests use Hold, DropResponses, RefuseEndpoint and Fail to control the timing and
// the failures a real network produces.
type Transport struct {
	handler    transport.ServerHandleFunc
	sink       transport.EventSink
	conns      *xsync.MapOf[transport.Handle, *conn]
	refused    *xsync.MapOf[string, error]
	nextHandle atomic.Uint64
	requests   atomic.Int64
	drop       atomic.Bool

	mu      sync.Mutex // protects events, held, holding and closed
	events  *queue.Queue
	held    *queue.Queue
	holding bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a loopback transport, a nil handler echoes every request
func New(handler transport.ServerHandleFunc) *Transport {
	if handler == nil {
		handler = Echo
	}
	t := &Transport{
		handler: handler,
		conns:   xsync.NewMapOf[transport.Handle, *conn](),
		refused: xsync.NewMapOf[string, error](),
		events:  queue.New(),
		held:    queue.New(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.deliver()
	return t
}

// --------------------------------------------------------------------------
// Test Controls
// --------------------------------------------------------------------------

// RefuseEndpoint makes every connect to endpoint fail with err
func (t *Transport) RefuseEndpoint(endpoint string, err error) {
	t.refused.Store(endpoint, err)
}

// Hold keeps responses back until Release is called
func (t *Transport) Hold() {
	t.mu.Lock()
	t.holding = true
	t.mu.Unlock()
}

// Release delivers all held responses and stops holding
func (t *Transport) Release() {
	t.mu.Lock()
	t.holding = false
	for t.held.Length() > 0 {
		t.events.Add(t.held.Remove())
	}
	t.signal()
	t.mu.Unlock()
}

// DropResponses makes the transport swallow the replies of the following requests.
// Dropped requests are reported as failed once their connection goes away.
func (t *Transport) DropResponses(drop bool) {
	t.drop.Store(drop)
}

// Fail simulates the loss of a connection
func (t *Transport) Fail(h transport.Handle, err error) error {
	c, ok := t.conns.LoadAndDelete(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	t.mu.Lock()
	t.disconnect(h, c, fmt.Errorf("connection to %s lost: %w", c.endpoint, err))
	t.mu.Unlock()
	return nil
}

// Requests returns the number of requests passed to SendAsync successfully
func (t *Transport) Requests() int64 {
	return t.requests.Load()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *Transport) Bind(sink transport.EventSink) {
	t.sink = sink
}

func (t *Transport) ConnectAsync(endpoint string) (transport.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, transport.ErrTransportClosed
	}
	if t.sink == nil {
		return 0, fmt.Errorf("no event sink bound")
	}

	h := transport.Handle(t.nextHandle.Add(1))

	if err, refused := t.refused.Load(endpoint); refused {
		t.enqueue(transport.Event{Kind: transport.EventConnectFailed, Handle: h, Err: err})
		return h, nil
	}

	t.conns.Store(h, &conn{endpoint: endpoint, pending: xsync.NewMapOf[uint64, struct{}]()})
	t.enqueue(transport.Event{Kind: transport.EventConnected, Handle: h})
	return h, nil
}

func (t *Transport) SendAsync(h transport.Handle, requestID uint64, data []byte) error {
	c, ok := t.conns.Load(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	t.requests.Add(1)

	if t.drop.Load() {
		c.pending.Store(requestID, struct{}{})
		return nil
	}

	req := make([]byte, len(data))
	copy(req, data)
	resp := t.handler(uint64(h), req)

	t.mu.Lock()
	t.enqueue(transport.Event{Kind: transport.EventResponse, Handle: h, RequestID: requestID, Data: resp})
	t.mu.Unlock()
	return nil
}

func (t *Transport) Disconnect(h transport.Handle) error {
	c, ok := t.conns.LoadAndDelete(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	t.mu.Lock()
	t.disconnect(h, c, nil)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.conns.Range(func(h transport.Handle, c *conn) bool {
		t.conns.Delete(h)
		t.disconnect(h, c, nil)
		return true
	})
	t.mu.Unlock()

	close(t.stop)
	t.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// disconnect queues the failure of all dropped requests and the disconnect, mu must be held
func (t *Transport) disconnect(h transport.Handle, c *conn, err error) {
	cause := transport.ErrDisconnected
	if err != nil {
		cause = err
	}
	c.pending.Range(func(requestID uint64, _ struct{}) bool {
		c.pending.Delete(requestID)
		t.enqueue(transport.Event{Kind: transport.EventSendFailed, Handle: h, RequestID: requestID, Err: cause})
		return true
	})
	// release held responses, the disconnect must stay the last event of the connection
	if t.held.Length() > 0 {
		for t.held.Length() > 0 {
			t.events.Add(t.held.Remove())
		}
		t.holding = false
	}
	t.enqueue(transport.Event{Kind: transport.EventDisconnected, Handle: h, Err: err})
}

// enqueue adds an event for the worker, mu must be held
func (t *Transport) enqueue(ev transport.Event) {
	if t.holding && ev.Kind == transport.EventResponse {
		t.held.Add(ev)
		return
	}
	t.events.Add(ev)
	t.signal()
}

// signal wakes the worker without blocking
func (t *Transport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// deliver passes queued events to the sink in order
func (t *Transport) deliver() {
	defer t.wg.Done()
	for {
		select {
		case <-t.wake:
			t.drain()
		case <-t.stop:
			t.drain()
			return
		}
	}
}

// drain delivers events until the queue is empty, the sink is called without holding mu
func (t *Transport) drain() {
	for {
		t.mu.Lock()
		if t.events.Length() == 0 {
			t.mu.Unlock()
			return
		}
		ev := t.events.Remove().(transport.Event)
		t.mu.Unlock()

		t.sink(ev)
	}
}
