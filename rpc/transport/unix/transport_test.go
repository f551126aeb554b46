package unix

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
)

func TestUnixEcho(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "xio.sock")

	srv := NewUnixServerTransport(common.ServerTransportConfig{})
	srv.RegisterHandler(func(_ uint64, req []byte) []byte { return req })

	served := make(chan error, 1)
	go func() {
		served <- srv.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: socket}})
	}()
	defer func() {
		srv.Close()
		if err := <-served; !errors.Is(err, transport.ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	}()

	events := make(chan transport.Event, 16)
	tr := NewUnixClientTransport(common.ClientTransportConfig{TimeoutSecond: 5})
	tr.Bind(func(ev transport.Event) { events <- ev })
	defer tr.Close()

	next := func() transport.Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for an event")
			return transport.Event{}
		}
	}

	// the listener may not exist yet, retry until connected
	var h transport.Handle
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		h, err = tr.ConnectAsync(socket)
		if err != nil {
			t.Fatalf("ConnectAsync failed: %v", err)
		}
		ev := next()
		if ev.Kind == transport.EventConnected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Could not connect: %v", ev.Err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := tr.SendAsync(h, 9, []byte("over unix")); err != nil {
		t.Fatalf("SendAsync failed: %v", err)
	}
	ev := next()
	if ev.Kind != transport.EventResponse || ev.RequestID != 9 || string(ev.Data) != "over unix" {
		t.Errorf("Unexpected event %+v", ev)
	}
}
