package msgpool

import (
	"fmt"
	"io"
	"sync/atomic"
)

// State is the lifecycle state of a message
type State uint32

const (
	// StateFree means the message is owned by the pool
	StateFree State = iota
	// StateAcquired means the message is owned by the application and may be written
	StateAcquired
	// StateSent means the message is owned by the client core and waits for a reply
	StateSent
	// StateCompleted means the reply (or the failure) was delivered to the application
	StateCompleted
)

// String returns the name of the state
func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateAcquired:
		return "acquired"
	case StateSent:
		return "sent"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Message is a reusable request/response buffer pair that belongs to exactly one pool
type Message struct {
	pool  *MsgPool
	index int
	state atomic.Uint32
	bound bool

	out   []byte // outbound region, len = bytes written, cap = OutSize
	in    []byte // inbound region, cap = InSize
	inLen int    // bytes of the received reply
	inPos int    // read position inside the reply
}

// bind assigns the backing memory of both regions. buf must hold InSize+OutSize bytes.
func (m *Message) bind(buf []byte) {
	outSize := m.pool.config.OutSize
	m.out = buf[:0:outSize]
	m.in = buf[outSize:len(buf):len(buf)]
	m.bound = true
}

// reset clears both regions for the next owner
func (m *Message) reset() {
	m.out = m.out[:0]
	m.inLen = 0
	m.inPos = 0
}

// --------------------------------------------------------------------------
// Application Side
// --------------------------------------------------------------------------

// Pool returns the pool the message belongs to
func (m *Message) Pool() *MsgPool {
	return m.pool
}

// Index returns the slot of the message inside its pool
func (m *Message) Index() int {
	return m.index
}

// State returns the current lifecycle state
func (m *Message) State() State {
	return State(m.state.Load())
}

// Write appends p to the outbound region. It implements io.Writer.
// Nothing is written if p does not fit into the remaining space.
func (m *Message) Write(p []byte) (int, error) {
	if st := m.State(); st != StateAcquired {
		return 0, fmt.Errorf("%w: cannot write in state %s", ErrInvalidState, st)
	}
	if len(m.out)+len(p) > cap(m.out) {
		return 0, fmt.Errorf("%w: %d bytes requested, %d available", ErrBufferFull, len(p), cap(m.out)-len(m.out))
	}
	m.out = append(m.out, p...)
	return len(p), nil
}

// WriteString appends s to the outbound region
func (m *Message) WriteString(s string) (int, error) {
	return m.Write([]byte(s))
}

// ResetOutbound discards everything written to the outbound region
func (m *Message) ResetOutbound() error {
	if st := m.State(); st != StateAcquired {
		return fmt.Errorf("%w: cannot reset in state %s", ErrInvalidState, st)
	}
	m.out = m.out[:0]
	return nil
}

// Len returns the number of bytes written to the outbound region
func (m *Message) Len() int {
	return len(m.out)
}

// Available returns the number of bytes that can still be written
func (m *Message) Available() int {
	return cap(m.out) - len(m.out)
}

// Outbound returns the written request bytes. The slice aliases the message memory.
func (m *Message) Outbound() []byte {
	return m.out
}

// Read copies reply bytes into p and advances the read position. It implements io.Reader
// and returns io.EOF once the whole reply was consumed.
func (m *Message) Read(p []byte) (int, error) {
	if st := m.State(); st != StateCompleted {
		return 0, fmt.Errorf("%w: cannot read in state %s", ErrInvalidState, st)
	}
	if m.inPos >= m.inLen {
		return 0, io.EOF
	}
	n := copy(p, m.in[m.inPos:m.inLen])
	m.inPos += n
	return n, nil
}

// ReadAll returns the unread part of the reply and consumes it.
// The slice aliases the message memory and is only valid until the message is released.
func (m *Message) ReadAll() ([]byte, error) {
	if st := m.State(); st != StateCompleted {
		return nil, fmt.Errorf("%w: cannot read in state %s", ErrInvalidState, st)
	}
	data := m.in[m.inPos:m.inLen]
	m.inPos = m.inLen
	return data, nil
}

// InboundLen returns the size of the received reply
func (m *Message) InboundLen() int {
	return m.inLen
}

// ReturnToPool releases the message to its pool
func (m *Message) ReturnToPool() error {
	return m.pool.Release(m)
}

// --------------------------------------------------------------------------
// Client Core Side
// --------------------------------------------------------------------------

// MarkSent moves the message from acquired to sent
func (m *Message) MarkSent() error {
	if !m.state.CompareAndSwap(uint32(StateAcquired), uint32(StateSent)) {
		return fmt.Errorf("%w: cannot send in state %s", ErrInvalidState, m.State())
	}
	return nil
}

// CancelSend moves a message that could not be handed to the transport back to acquired
func (m *Message) CancelSend() error {
	if !m.state.CompareAndSwap(uint32(StateSent), uint32(StateAcquired)) {
		return fmt.Errorf("%w: cannot cancel send in state %s", ErrInvalidState, m.State())
	}
	return nil
}

// Complete copies the reply into the inbound region and moves the message to completed.
// A reply larger than the inbound region fails with ErrBufferFull, the message then
// stays in state sent so the caller can fail it.
func (m *Message) Complete(reply []byte) error {
	if st := m.State(); st != StateSent {
		return fmt.Errorf("%w: cannot complete in state %s", ErrInvalidState, st)
	}
	if len(reply) > cap(m.in) {
		return fmt.Errorf("%w: reply of %d bytes exceeds inbound size %d", ErrBufferFull, len(reply), cap(m.in))
	}
	m.inLen = copy(m.in[:cap(m.in)], reply)
	m.inPos = 0
	m.state.Store(uint32(StateCompleted))
	return nil
}

// Fail moves a sent message to completed without a reply
func (m *Message) Fail() error {
	if !m.state.CompareAndSwap(uint32(StateSent), uint32(StateCompleted)) {
		return fmt.Errorf("%w: cannot fail in state %s", ErrInvalidState, m.State())
	}
	m.inLen = 0
	m.inPos = 0
	return nil
}
