package msgpool

import (
	"errors"
	"io"
	"testing"
)

func TestMessageWrite(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 1, InSize: 4, OutSize: 8})
	m, _ := p.Acquire()

	if n, err := m.Write([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("Write returned n=%d err=%v", n, err)
	}
	if m.Available() != 3 {
		t.Errorf("Expected 3 bytes available, got %d", m.Available())
	}

	// does not fit, nothing is written
	if _, err := m.Write([]byte("world")); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Expected ErrBufferFull, got %v", err)
	}
	if string(m.Outbound()) != "hello" {
		t.Errorf("Outbound region changed by a failed write: %q", m.Outbound())
	}

	if _, err := m.WriteString("!!!"); err != nil {
		t.Fatalf("Write of exactly the remaining space failed: %v", err)
	}
	if m.Len() != 8 {
		t.Errorf("Expected 8 bytes written, got %d", m.Len())
	}

	if err := m.ResetOutbound(); err != nil {
		t.Fatalf("ResetOutbound failed: %v", err)
	}
	if m.Len() != 0 || m.Available() != 8 {
		t.Errorf("Expected empty outbound region, got len=%d available=%d", m.Len(), m.Available())
	}
}

func TestMessageWriteNotAcquired(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 1, InSize: 4, OutSize: 8})
	m, _ := p.Acquire()
	m.MarkSent()

	if _, err := m.Write([]byte("x")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for write in state sent, got %v", err)
	}
}

func TestMessageRegionsDoNotOverlap(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 2, InSize: 4, OutSize: 4})
	a, _ := p.Acquire()
	b, _ := p.Acquire()

	a.WriteString("aaaa")
	b.WriteString("bbbb")
	a.MarkSent()
	a.Complete([]byte("AAAA"))

	if string(a.Outbound()) != "aaaa" {
		t.Errorf("Outbound region of a was overwritten: %q", a.Outbound())
	}
	if string(b.Outbound()) != "bbbb" {
		t.Errorf("Outbound region of b was overwritten: %q", b.Outbound())
	}
	data, _ := a.ReadAll()
	if string(data) != "AAAA" {
		t.Errorf("Inbound region of a is wrong: %q", data)
	}
}

func TestMessageLifecycle(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 1, InSize: 16, OutSize: 16})
	m, _ := p.Acquire()

	if err := m.Complete(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Complete in state acquired should fail, got %v", err)
	}
	if err := m.Fail(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Fail in state acquired should fail, got %v", err)
	}

	if err := m.MarkSent(); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if err := m.MarkSent(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Second MarkSent should fail, got %v", err)
	}

	if err := m.CancelSend(); err != nil {
		t.Fatalf("CancelSend failed: %v", err)
	}
	if m.State() != StateAcquired {
		t.Errorf("Expected state acquired after CancelSend, got %s", m.State())
	}

	m.MarkSent()
	if err := m.Fail(); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if m.State() != StateCompleted {
		t.Errorf("Expected state completed, got %s", m.State())
	}
	if data, err := m.ReadAll(); err != nil || len(data) != 0 {
		t.Errorf("Expected empty reply for failed message, got %q err=%v", data, err)
	}
	if err := m.ReturnToPool(); err != nil {
		t.Fatalf("ReturnToPool failed: %v", err)
	}
	if m.State() != StateFree {
		t.Errorf("Expected state free, got %s", m.State())
	}
}

func TestMessageCompleteTooLarge(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 1, InSize: 4, OutSize: 4})
	m, _ := p.Acquire()
	m.MarkSent()

	if err := m.Complete([]byte("too large")); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Expected ErrBufferFull, got %v", err)
	}
	if m.State() != StateSent {
		t.Errorf("Message should stay sent after a rejected reply, got %s", m.State())
	}
}

func TestMessageRead(t *testing.T) {
	p := newTestPool(t, Config{Capacity: 1, InSize: 16, OutSize: 16})
	m, _ := p.Acquire()

	if _, err := m.Read(make([]byte, 1)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Read before completion should fail, got %v", err)
	}

	m.MarkSent()
	m.Complete([]byte("abcdef"))

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	if err != nil || string(buf[:n]) != "abcd" {
		t.Fatalf("First read returned %q err=%v", buf[:n], err)
	}

	rest, err := m.ReadAll()
	if err != nil || string(rest) != "ef" {
		t.Fatalf("ReadAll returned %q err=%v", rest, err)
	}

	if _, err := m.Read(buf); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if again, _ := m.ReadAll(); len(again) != 0 {
		t.Errorf("Second ReadAll should be empty, got %q", again)
	}
	if m.InboundLen() != 6 {
		t.Errorf("Expected reply length 6, got %d", m.InboundLen())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateFree:      "free",
		StateAcquired:  "acquired",
		StateSent:      "sent",
		StateCompleted: "completed",
		State(42):      "unknown(42)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", uint32(state), got, want)
		}
	}
}
