package loopback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/xio/rpc/transport"
)

// collector records the events of a transport
type collector struct {
	mu     sync.Mutex
	events []transport.Event
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 1024)}
}

func (c *collector) sink(ev transport.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

// wait blocks until n events were recorded and returns them
func (c *collector) wait(t *testing.T, n int) []transport.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			events := append([]transport.Event(nil), c.events...)
			c.mu.Unlock()
			return events
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("Timeout waiting for %d events, got %d", n, len(c.events))
		}
	}
}

func newTransport(t *testing.T, handler transport.ServerHandleFunc) (*Transport, *collector) {
	t.Helper()
	tr := New(handler)
	c := newCollector()
	tr.Bind(c.sink)
	t.Cleanup(func() { tr.Close() })
	return tr, c
}

func TestConnectAndEcho(t *testing.T) {
	tr, c := newTransport(t, nil)

	h, err := tr.ConnectAsync("loop")
	if err != nil {
		t.Fatalf("ConnectAsync failed: %v", err)
	}
	if err := tr.SendAsync(h, 7, []byte("ping")); err != nil {
		t.Fatalf("SendAsync failed: %v", err)
	}

	events := c.wait(t, 2)
	if events[0].Kind != transport.EventConnected || events[0].Handle != h {
		t.Errorf("Expected connected event first, got %+v", events[0])
	}
	if events[1].Kind != transport.EventResponse || events[1].RequestID != 7 || string(events[1].Data) != "ping" {
		t.Errorf("Unexpected response event %+v", events[1])
	}
	if tr.Requests() != 1 {
		t.Errorf("Expected 1 request, got %d", tr.Requests())
	}
}

func TestSendDoesNotRetainData(t *testing.T) {
	tr, c := newTransport(t, nil)
	h, _ := tr.ConnectAsync("loop")

	data := []byte("abc")
	tr.SendAsync(h, 1, data)
	data[0] = 'x'

	events := c.wait(t, 2)
	if string(events[1].Data) != "abc" {
		t.Errorf("Response aliases the request buffer: %q", events[1].Data)
	}
}

func TestRefuseEndpoint(t *testing.T) {
	tr, c := newTransport(t, nil)
	refused := errors.New("refused")
	tr.RefuseEndpoint("down", refused)

	h, err := tr.ConnectAsync("down")
	if err != nil {
		t.Fatalf("ConnectAsync should report failures as events, got %v", err)
	}

	events := c.wait(t, 1)
	if events[0].Kind != transport.EventConnectFailed || !errors.Is(events[0].Err, refused) {
		t.Errorf("Expected connect failure, got %+v", events[0])
	}
	if err := tr.SendAsync(h, 1, nil); !errors.Is(err, transport.ErrUnknownHandle) {
		t.Errorf("Expected ErrUnknownHandle, got %v", err)
	}
}

func TestHoldAndRelease(t *testing.T) {
	tr, c := newTransport(t, nil)
	h, _ := tr.ConnectAsync("loop")
	c.wait(t, 1)

	tr.Hold()
	tr.SendAsync(h, 1, []byte("a"))
	tr.SendAsync(h, 2, []byte("b"))

	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	n := len(c.events)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("Responses were delivered while holding: %d events", n)
	}

	tr.Release()
	events := c.wait(t, 3)
	if events[1].RequestID != 1 || events[2].RequestID != 2 {
		t.Errorf("Held responses out of order: %d, %d", events[1].RequestID, events[2].RequestID)
	}
}

func TestDropAndDisconnect(t *testing.T) {
	tr, c := newTransport(t, nil)
	h, _ := tr.ConnectAsync("loop")

	tr.DropResponses(true)
	tr.SendAsync(h, 1, []byte("a"))
	tr.SendAsync(h, 2, []byte("b"))

	if err := tr.Disconnect(h); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	events := c.wait(t, 4)
	failed := map[uint64]bool{}
	for _, ev := range events[1:3] {
		if ev.Kind != transport.EventSendFailed || !errors.Is(ev.Err, transport.ErrDisconnected) {
			t.Errorf("Expected send failure, got %+v", ev)
		}
		failed[ev.RequestID] = true
	}
	if !failed[1] || !failed[2] {
		t.Errorf("Not every dropped request was reported: %v", failed)
	}
	if last := events[3]; last.Kind != transport.EventDisconnected || last.Err != nil {
		t.Errorf("Expected local disconnect last, got %+v", last)
	}
}

func TestFail(t *testing.T) {
	tr, c := newTransport(t, nil)
	h, _ := tr.ConnectAsync("loop")

	lost := errors.New("cable cut")
	if err := tr.Fail(h, lost); err != nil {
		t.Fatalf("Fail returned %v", err)
	}

	events := c.wait(t, 2)
	if events[1].Kind != transport.EventDisconnected || !errors.Is(events[1].Err, lost) {
		t.Errorf("Expected disconnect with cause, got %+v", events[1])
	}
	if err := tr.SendAsync(h, 1, nil); !errors.Is(err, transport.ErrUnknownHandle) {
		t.Errorf("Expected ErrUnknownHandle after failure, got %v", err)
	}
}

func TestCloseDisconnectsAll(t *testing.T) {
	tr := New(nil)
	c := newCollector()
	tr.Bind(c.sink)

	tr.ConnectAsync("a")
	tr.ConnectAsync("b")

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := c.wait(t, 4)
	disconnects := 0
	for _, ev := range events {
		if ev.Kind == transport.EventDisconnected {
			disconnects++
		}
	}
	if disconnects != 2 {
		t.Errorf("Expected 2 disconnects, got %d", disconnects)
	}
	if _, err := tr.ConnectAsync("c"); !errors.Is(err, transport.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
}
