package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewHttpClientTransport creates a client transport that sends every request as POST {endpoint}/{session}
func NewHttpClientTransport(config common.ClientTransportConfig) transport.IRPCClientTransport {
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	return &httpClientTransport{
		config: config,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     timeout,
			},
		},
		connections: xsync.NewMapOf[transport.Handle, *httpConnection](),
	}
}

// httpConnection is a logical connection, HTTP itself reuses pooled TCP connections
type httpConnection struct {
	handle   transport.Handle
	endpoint string
	url      string
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects closing and inflight.Add
	closing  bool
	inflight sync.WaitGroup
}

type httpClientTransport struct {
	config      common.ClientTransportConfig
	client      *http.Client
	sink        transport.EventSink
	connections *xsync.MapOf[transport.Handle, *httpConnection]
	nextHandle  atomic.Uint64
	closed      atomic.Bool
	wg          sync.WaitGroup
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Bind(sink transport.EventSink) {
	t.sink = sink
}

func (t *httpClientTransport) ConnectAsync(endpoint string) (transport.Handle, error) {
	if t.closed.Load() {
		return 0, transport.ErrTransportClosed
	}
	if t.sink == nil {
		return 0, fmt.Errorf("no event sink bound")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &httpConnection{
		handle:   transport.Handle(t.nextHandle.Add(1)),
		endpoint: endpoint,
		ctx:      ctx,
		cancel:   cancel,
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		parsed, err := url.Parse(endpoint)
		if err == nil && (parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "") {
			err = fmt.Errorf("endpoint must be an absolute http(s) url")
		}
		if err != nil {
			cancel()
			Logger.Warningf("Invalid endpoint %q: %v", endpoint, err)
			t.sink(transport.Event{Kind: transport.EventConnectFailed, Handle: c.handle, Err: fmt.Errorf("invalid endpoint %q: %w", endpoint, err)})
			return
		}

		if t.closed.Load() {
			cancel()
			t.sink(transport.Event{Kind: transport.EventConnectFailed, Handle: c.handle, Err: transport.ErrTransportClosed})
			return
		}

		c.url = fmt.Sprintf("%s/%d", strings.TrimSuffix(parsed.String(), "/"), c.handle)
		t.connections.Store(c.handle, c)
		t.sink(transport.Event{Kind: transport.EventConnected, Handle: c.handle})
	}()

	return c.handle, nil
}

func (t *httpClientTransport) SendAsync(h transport.Handle, requestID uint64, data []byte) error {
	c, ok := t.connections.Load(h)
	if !ok {
		return transport.ErrUnknownHandle
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return transport.ErrDisconnected
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	// the body is sent after SendAsync returned, the caller may reuse data
	body := make([]byte, len(data))
	copy(body, data)

	go func() {
		defer c.inflight.Done()
		resp, err := t.post(c, body)
		if err != nil {
			if c.ctx.Err() != nil {
				err = transport.ErrDisconnected
			}
			t.sink(transport.Event{Kind: transport.EventSendFailed, Handle: h, RequestID: requestID, Err: err})
			return
		}
		t.sink(transport.Event{Kind: transport.EventResponse, Handle: h, RequestID: requestID, Data: resp})
	}()
	return nil
}

func (t *httpClientTransport) Disconnect(h transport.Handle) error {
	c, ok := t.connections.LoadAndDelete(h)
	if !ok {
		return transport.ErrUnknownHandle
	}
	t.disconnect(c)
	return nil
}

func (t *httpClientTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.connections.Range(func(h transport.Handle, c *httpConnection) bool {
		t.connections.Delete(h)
		t.disconnect(c)
		return true
	})

	t.wg.Wait()
	t.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// disconnect cancels all requests of c and reports the disconnect after they finished
func (t *httpClientTransport) disconnect(c *httpConnection) {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.cancel()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		c.inflight.Wait()
		t.sink(transport.Event{Kind: transport.EventDisconnected, Handle: c.handle})
	}()
}

// post sends one request and reads the whole response body
func (t *httpClientTransport) post(c *httpConnection, body []byte) ([]byte, error) {
	ctx := c.ctx
	if t.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.config.TimeoutSecond)*time.Second)
		defer cancel()
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	return io.ReadAll(httpResponse.Body)
}
