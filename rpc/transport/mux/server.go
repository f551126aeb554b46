package mux

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	xiohttp "github.com/ValentinKolb/xio/rpc/transport/http"
	"github.com/ValentinKolb/xio/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/soheilhy/cmux"
)

var Logger = logger.GetLogger("transport/rpc")

// NewMuxServerTransport creates a server transport that serves HTTP/1 clients and framed
// TCP clients on the same port
func NewMuxServerTransport(config common.ServerConfig) transport.IRPCServerTransport {
	return &muxServerTransport{
		config:    config,
		httpInner: xiohttp.NewHttpServerTransport(config),
		tcpInner:  tcp.NewTCPServerTransport(config.Transport),
	}
}

type muxServerTransport struct {
	config    common.ServerConfig
	httpInner transport.IRPCServerTransport
	tcpInner  transport.IRPCServerTransport
	mu        sync.Mutex // protects listener and closed
	listener  net.Listener
	closed    bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *muxServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.httpInner.RegisterHandler(handler)
	t.tcpInner.RegisterHandler(handler)
}

func (t *muxServerTransport) Listen(config common.ServerConfig) error {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return t.Serve(listener)
}

func (t *muxServerTransport) Serve(listener net.Listener) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		listener.Close()
		return transport.ErrServerClosed
	}
	t.listener = listener
	t.mu.Unlock()

	m := cmux.New(listener)
	// HTTP/1 requests start with a method name, everything else is a frame header
	httpL := m.Match(cmux.HTTP1Fast())
	tcpL := m.Match(cmux.Any())

	serve := func(name string, inner transport.IRPCServerTransport, l net.Listener) {
		if err := inner.Serve(l); err != nil && !errors.Is(err, transport.ErrServerClosed) {
			Logger.Warningf("%s side of mux server stopped: %v", name, err)
		}
	}
	go serve("http", t.httpInner, httpL)
	go serve("tcp", t.tcpInner, tcpL)

	Logger.Infof("Starting mux server (http + tcp) on %s", listener.Addr())

	err := m.Serve()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return transport.ErrServerClosed
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("mux server failed: %w", err)
	}
	return nil
}

func (t *muxServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listener := t.listener
	t.mu.Unlock()

	// inner servers first, then the shared listener
	var errs []error
	if err := t.httpInner.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	if err := t.tcpInner.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
