package client

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/xio/lib/msgpool"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

type sessionState uint8

const (
	sessionPending sessionState = iota
	sessionConnecting
	sessionEstablished
	sessionClosed
)

// Session is one logical connection to an endpoint, bound to a reactor.
// Connect, Send and Close may be called from any goroutine, including callbacks.
type Session struct {
	id        uuid.UUID
	endpoint  string
	reactor   *EventReactor
	callbacks Callbacks
	logger    logger.ILogger
	rtt       gometrics.Timer
	closing   atomic.Bool

	// owned by the reactor goroutine
	state    sessionState
	handle   transport.Handle
	backlog  *queue.Queue
	inflight map[uint64]struct{}
}

// Connect creates a session and starts to connect it to endpoint. It does not wait,
// the outcome is reported by OnSessionEstablished or by OnSessionEvent with
// EventSessionError and ReasonConnectError.
func Connect(reactor *EventReactor, endpoint string, callbacks Callbacks) (*Session, error) {
	if reactor == nil {
		return nil, fmt.Errorf("reactor must not be nil")
	}
	if callbacks == nil {
		return nil, fmt.Errorf("callbacks must not be nil")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}

	s := &Session{
		id:        uuid.New(),
		endpoint:  endpoint,
		reactor:   reactor,
		callbacks: callbacks,
		logger:    SessionLogger,
		rtt:       gometrics.NewTimer(),
		backlog:   queue.New(),
		inflight:  make(map[uint64]struct{}),
	}

	if err := reactor.submit(&task{kind: taskConnect, session: s}); err != nil {
		s.rtt.Stop()
		return nil, err
	}

	s.logger.Debugf("Session %s connecting to %s", s.id, endpoint)
	return s, nil
}

// Send queues an acquired message for transmission. On success the message belongs
// to the session until it is passed to OnResponse or OnMsgError. On error it stays
// acquired and belongs to the caller. Once the reactor was asked to stop every Send
// fails with ErrReactorStopped.
func (s *Session) Send(msg *msgpool.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", msgpool.ErrForeignMessage)
	}
	if s.reactor.stopping.Load() {
		return ErrReactorStopped
	}
	if s.closing.Load() {
		return ErrSessionClosing
	}
	if err := msg.MarkSent(); err != nil {
		return err
	}
	if err := s.reactor.submit(&task{kind: taskSend, session: s, msg: msg}); err != nil {
		_ = msg.CancelSend()
		return err
	}
	return nil
}

// Close starts to close the session, further sends fail with ErrSessionClosing.
// Queued and in-flight messages are reported with ReasonMsgFlushed, followed by
// OnSessionEvent with EventSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.reactor.submit(&task{kind: taskClose, session: s}); err != nil {
		// the reactor released everything when it stopped
		s.logger.Debugf("Session %s closed after its reactor stopped", s.id)
	}
	return nil
}

// IsClosing returns true once Close was called or the session failed
func (s *Session) IsClosing() bool {
	return s.closing.Load()
}

// ID returns the identity of the session
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Endpoint returns the endpoint the session connects to
func (s *Session) Endpoint() string {
	return s.endpoint
}

// RTT returns the timer of the round trip times of this session
func (s *Session) RTT() gometrics.Timer {
	return s.rtt
}
