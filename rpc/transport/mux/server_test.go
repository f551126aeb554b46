package mux

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	xiohttp "github.com/ValentinKolb/xio/rpc/transport/http"
	"github.com/ValentinKolb/xio/rpc/transport/tcp"
)

func TestMuxServesHttpAndTcp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := listener.Addr().String()

	srv := NewMuxServerTransport(common.ServerConfig{Transport: common.ServerTransportConfig{TimeoutSecond: 5}})
	srv.RegisterHandler(func(_ uint64, req []byte) []byte { return append([]byte("mux "), req...) })

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(listener)
	}()
	defer func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		select {
		case err := <-served:
			if !errors.Is(err, transport.ErrServerClosed) {
				t.Errorf("Expected ErrServerClosed, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Serve did not return")
		}
	}()

	clientConfig := common.ClientTransportConfig{TimeoutSecond: 5, TCPConf: common.TCPConf{TCPLingerSec: -1}}
	clients := map[string]struct {
		tr       transport.IRPCClientTransport
		endpoint string
	}{
		"tcp":  {tcp.NewTCPClientTransport(clientConfig), addr},
		"http": {xiohttp.NewHttpClientTransport(clientConfig), "http://" + addr},
	}

	for name, c := range clients {
		t.Run(name, func(t *testing.T) {
			events := make(chan transport.Event, 16)
			c.tr.Bind(func(ev transport.Event) { events <- ev })
			defer c.tr.Close()

			next := func() transport.Event {
				select {
				case ev := <-events:
					return ev
				case <-time.After(5 * time.Second):
					t.Fatalf("Timed out waiting for an event")
					return transport.Event{}
				}
			}

			h, err := c.tr.ConnectAsync(c.endpoint)
			if err != nil {
				t.Fatalf("ConnectAsync failed: %v", err)
			}
			if ev := next(); ev.Kind != transport.EventConnected {
				t.Fatalf("Expected connected, got %+v", ev)
			}
			if err := c.tr.SendAsync(h, 1, []byte(name)); err != nil {
				t.Fatalf("SendAsync failed: %v", err)
			}
			ev := next()
			if ev.Kind != transport.EventResponse || string(ev.Data) != "mux "+name {
				t.Errorf("Unexpected event %+v", ev)
			}
		})
	}
}
