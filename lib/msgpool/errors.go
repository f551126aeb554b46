package msgpool

import "errors"

// Errors returned by the pool and by message state transitions.
// They signal programming errors and are never retried.
var (
	// ErrPoolExhausted is returned by a non-blocking pool if no message is free
	ErrPoolExhausted = errors.New("message pool exhausted")
	// ErrForeignMessage is returned when a message is released to a pool it was not acquired from
	ErrForeignMessage = errors.New("message does not belong to this pool")
	// ErrDoubleRelease is returned when a message that is already free is released again
	ErrDoubleRelease = errors.New("message already released")
	// ErrBufferFull is returned when a write (or a reply) does not fit into the message region
	ErrBufferFull = errors.New("message buffer full")
	// ErrInvalidState is returned when an operation is not allowed in the current message state
	ErrInvalidState = errors.New("invalid message state")
	// ErrMessagesOutstanding is returned by Destroy while messages are still acquired, sent or completed
	ErrMessagesOutstanding = errors.New("messages still outstanding")
	// ErrPoolDestroyed is returned by acquire calls on a destroyed pool
	ErrPoolDestroyed = errors.New("message pool destroyed")
)
