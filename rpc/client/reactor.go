package client

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/xio/lib/msgpool"
	"github.com/ValentinKolb/xio/lib/util"
	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/eapache/queue"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	Logger        = logger.GetLogger("reactor")
	SessionLogger = logger.GetLogger("session")
)

const (
	defaultQueueSize   = 1024
	defaultReactorName = "default"
)

// ReactorState is the lifecycle state of an EventReactor
type ReactorState uint32

const (
	// ReactorIdle: created, Run was not called yet
	ReactorIdle ReactorState = iota
	// ReactorRunning: the loop is dispatching
	ReactorRunning
	// ReactorStopped: terminal, all resources are released
	ReactorStopped
)

// String returns the string representation of a ReactorState
func (s ReactorState) String() string {
	switch s {
	case ReactorIdle:
		return "idle"
	case ReactorRunning:
		return "running"
	case ReactorStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Option configures optional collaborators of a reactor
type Option func(r *EventReactor)

// WithName sets the name used in log lines and as metrics label
func WithName(name string) Option {
	return func(r *EventReactor) {
		r.name = name
	}
}

// WithLogger sets the logger of the reactor (default: logger "reactor")
func WithLogger(l logger.ILogger) Option {
	return func(r *EventReactor) {
		r.logger = l
	}
}

// WithMetrics registers the reactor metrics in the given set instead of a private one
func WithMetrics(set *metrics.Set) Option {
	return func(r *EventReactor) {
		r.metricSet = set
	}
}

// WithRegistry registers the reactor round trip timer in the given registry
func WithRegistry(registry gometrics.Registry) Option {
	return func(r *EventReactor) {
		r.registry = registry
	}
}

// WithQueueSize sets the capacity of the submission and the completion queue.
// It should not be smaller than the capacity of the pools used with the reactor,
// otherwise transport goroutines can block on a full completion queue.
func WithQueueSize(size int) Option {
	return func(r *EventReactor) {
		r.queueSize = size
	}
}

type taskKind uint8

const (
	taskConnect taskKind = iota
	taskSend
	taskClose
)

// task is a unit of work submitted by a session
type task struct {
	kind    taskKind
	session *Session
	msg     *msgpool.Message
}

// flight is a request handed to the transport that waits for its reply
type flight struct {
	session *Session
	msg     *msgpool.Message
	start   time.Time
}

// held is an accepted send the reactor still owns when it stops
type held struct {
	session *Session
	msg     *msgpool.Message
}

// EventReactor is a single threaded dispatch loop. Sessions submit work from any
// goroutine, the reactor executes it and the transport events on the goroutine that
// called Run and invokes the session callbacks there.
type EventReactor struct {
	name      string
	transport transport.IRPCClientTransport
	logger    logger.ILogger
	metricSet *metrics.Set
	registry  gometrics.Registry
	queueSize int
	stats     reactorMetrics

	state    atomic.Uint32
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	submissions *util.BoundedMPSC[task]
	completions *util.BoundedMPSC[transport.Event]

	loopID      atomic.Uint64
	dispatching atomic.Bool

	// owned by the loop goroutine
	local         *queue.Queue
	sessions      map[transport.Handle]*Session
	pending       map[*Session]struct{} // not connected yet, but with a backlog
	inflight      map[uint64]*flight
	nextRequestID uint64

	activeSessions atomic.Int64
	inflightCount  atomic.Int64
}

// NewReactor creates an idle reactor that owns the given transport.
// The transport is closed when the reactor stops.
func NewReactor(tr transport.IRPCClientTransport, opts ...Option) *EventReactor {
	r := &EventReactor{
		name:      defaultReactorName,
		transport: tr,
		logger:    Logger,
		queueSize: defaultQueueSize,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		local:     queue.New(),
		sessions:  make(map[transport.Handle]*Session),
		pending:   make(map[*Session]struct{}),
		inflight:  make(map[uint64]*flight),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queueSize <= 0 {
		r.queueSize = defaultQueueSize
	}
	if r.metricSet == nil {
		r.metricSet = metrics.NewSet()
	}
	if r.registry == nil {
		r.registry = gometrics.NewRegistry()
	}

	r.submissions = util.NewBoundedMPSC[task](r.queueSize)
	r.completions = util.NewBoundedMPSC[transport.Event](r.queueSize)
	r.stats = newReactorMetrics(r.metricSet, r.registry, r)

	tr.Bind(r.onEvent)

	r.logger.Debugf("Created reactor %s with queue size %d", r.name, r.queueSize)
	return r
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Run dispatches work on the calling goroutine until Stop is called or a callback panics.
// Before Run returns, every send accepted before the stop that has no outcome yet is
// reported with OnMsgError(ReasonMsgFlushed) on this goroutine and the transport is closed.
func (r *EventReactor) Run() error {
	if !r.state.CompareAndSwap(uint32(ReactorIdle), uint32(ReactorRunning)) {
		return ErrInvalidReactorState
	}
	r.loopID.Store(util.GoroutineID())
	r.logger.Infof("Reactor %s running", r.name)

	err := r.loop()

	r.stopping.Store(true)
	r.state.Store(uint32(ReactorStopped))
	if flushErr := r.shutdown(true); err == nil {
		err = flushErr
	}

	if err != nil {
		r.logger.Errorf("Reactor %s stopped: %v", r.name, err)
		return err
	}
	r.logger.Infof("Reactor %s stopped", r.name)
	return nil
}

// Stop requests the reactor to stop. It may be called from any goroutine, including
// callbacks, and does not wait. A callback in progress completes, no further event is
// dispatched and sends submitted afterwards fail with ErrReactorStopped.
//
// An idle reactor is shut down immediately on the calling goroutine. It has no loop
// to run callbacks on, so the messages of its queued sends are returned to their
// pools without OnMsgError.
func (r *EventReactor) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		close(r.stopCh)
		if r.state.CompareAndSwap(uint32(ReactorIdle), uint32(ReactorStopped)) {
			_ = r.shutdown(false)
			r.logger.Infof("Reactor %s stopped before it ran", r.name)
		}
	})
}

// Done is closed once the reactor has stopped and released its resources
func (r *EventReactor) Done() <-chan struct{} {
	return r.done
}

// State returns the lifecycle state
func (r *EventReactor) State() ReactorState {
	return ReactorState(r.state.Load())
}

// Name returns the name of the reactor
func (r *EventReactor) Name() string {
	return r.name
}

// Metrics returns the set holding the reactor metrics
func (r *EventReactor) Metrics() *metrics.Set {
	return r.metricSet
}

// Registry returns the registry holding the reactor round trip timer
func (r *EventReactor) Registry() gometrics.Registry {
	return r.registry
}

// --------------------------------------------------------------------------
// Submission
// --------------------------------------------------------------------------

// submit hands a task to the loop. Tasks submitted on the loop goroutine go to the
// local queue, a callback never waits for its own reactor.
func (r *EventReactor) submit(t *task) error {
	if r.stopping.Load() {
		return ErrReactorStopped
	}
	if r.onLoop() {
		r.local.Add(t)
	} else if !r.submissions.Push(t) {
		return ErrReactorStopped
	}
	r.stats.submitted.Inc()
	return nil
}

// onLoop reports whether the caller is the loop goroutine dispatching a task or an event
func (r *EventReactor) onLoop() bool {
	return r.dispatching.Load() && r.loopID.Load() == util.GoroutineID()
}

// onEvent is the sink of the transport
func (r *EventReactor) onEvent(ev transport.Event) {
	if !r.completions.Push(&ev) {
		r.logger.Debugf("Dropped %s event of connection %d, reactor %s stopped", ev.Kind, ev.Handle, r.name)
	}
}

// --------------------------------------------------------------------------
// Loop
// --------------------------------------------------------------------------

func (r *EventReactor) loop() (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.dispatching.Store(false)
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()

	for {
		for r.local.Length() > 0 {
			if r.stopping.Load() {
				return nil
			}
			r.dispatchTask(r.local.Remove().(*task))
		}

		select {
		case <-r.stopCh:
			return nil

		case t, ok := <-r.submissions.Recv():
			if !ok {
				return nil
			}
			if r.stopping.Load() {
				// flushed by shutdown
				r.local.Add(t)
				return nil
			}
			r.dispatchTask(t)

		case ev, ok := <-r.completions.Recv():
			if !ok {
				return nil
			}
			if r.stopping.Load() {
				// requests still in flight are flushed by shutdown
				return nil
			}
			r.dispatchEvent(ev)
		}
	}
}

func (r *EventReactor) dispatchTask(t *task) {
	r.dispatching.Store(true)
	defer r.dispatching.Store(false)

	switch t.kind {
	case taskConnect:
		r.connect(t.session)
	case taskSend:
		r.send(t.session, t.msg)
	case taskClose:
		r.teardown(t.session, common.EventSessionClosed, common.ReasonSessionClosed, true)
	}
}

func (r *EventReactor) dispatchEvent(ev *transport.Event) {
	r.dispatching.Store(true)
	defer r.dispatching.Store(false)

	r.stats.events.Inc()

	switch ev.Kind {
	case transport.EventConnected:
		r.established(ev.Handle)
	case transport.EventConnectFailed:
		s, ok := r.sessions[ev.Handle]
		if !ok {
			return
		}
		s.logger.Warningf("Session %s failed to connect to %s: %v", s.id, s.endpoint, ev.Err)
		r.teardown(s, common.EventSessionError, common.ReasonConnectError, false)
	case transport.EventResponse:
		r.response(ev)
	case transport.EventSendFailed:
		f, ok := r.untrack(ev.RequestID)
		if !ok {
			return
		}
		f.session.logger.Warningf("Request %d of session %s failed: %v", ev.RequestID, f.session.id, ev.Err)
		r.msgError(f.session, f.msg, common.ReasonMsgFlushed)
	case transport.EventDisconnected:
		s, ok := r.sessions[ev.Handle]
		if !ok {
			return
		}
		if ev.Err != nil {
			s.logger.Warningf("Session %s lost its connection to %s: %v", s.id, s.endpoint, ev.Err)
			r.teardown(s, common.EventSessionError, common.ReasonTransportError, false)
			return
		}
		r.teardown(s, common.EventSessionClosed, common.ReasonSessionClosed, false)
	default:
		r.logger.Warningf("Ignoring event of kind %s", ev.Kind)
	}
}

// --------------------------------------------------------------------------
// Dispatch Helpers (loop goroutine only)
// --------------------------------------------------------------------------

func (r *EventReactor) connect(s *Session) {
	delete(r.pending, s)
	if s.closing.Load() {
		// closed before the connect was dispatched, the close task reports it
		return
	}
	h, err := r.transport.ConnectAsync(s.endpoint)
	if err != nil {
		s.logger.Warningf("Session %s failed to connect to %s: %v", s.id, s.endpoint, err)
		r.teardown(s, common.EventSessionError, common.ReasonConnectError, false)
		return
	}
	s.handle = h
	s.state = sessionConnecting
	r.sessions[h] = s
	r.activeSessions.Add(1)
}

func (r *EventReactor) established(h transport.Handle) {
	s, ok := r.sessions[h]
	if !ok {
		r.logger.Warningf("Connection %d belongs to no session, disconnecting", h)
		_ = r.transport.Disconnect(h)
		return
	}
	if s.state != sessionConnecting {
		return
	}
	s.state = sessionEstablished
	s.logger.Infof("Session %s established to %s", s.id, s.endpoint)

	if r.stopping.Load() {
		return
	}
	s.callbacks.OnSessionEstablished()

	for s.backlog.Length() > 0 && s.state == sessionEstablished && !s.closing.Load() && !r.stopping.Load() {
		r.transmit(s, s.backlog.Remove().(*msgpool.Message))
	}
}

func (r *EventReactor) send(s *Session, msg *msgpool.Message) {
	switch s.state {
	case sessionEstablished:
		r.transmit(s, msg)
	case sessionPending, sessionConnecting:
		if s.closing.Load() {
			r.msgError(s, msg, common.ReasonMsgFlushed)
			return
		}
		s.backlog.Add(msg)
		if s.state == sessionPending {
			r.pending[s] = struct{}{}
		}
	default:
		r.msgError(s, msg, common.ReasonMsgFlushed)
	}
}

// transmit hands a message to the transport and tracks it until its reply arrives
func (r *EventReactor) transmit(s *Session, msg *msgpool.Message) {
	r.nextRequestID++
	id := r.nextRequestID

	r.inflight[id] = &flight{session: s, msg: msg, start: time.Now()}
	s.inflight[id] = struct{}{}
	r.inflightCount.Add(1)

	if err := r.transport.SendAsync(s.handle, id, msg.Outbound()); err != nil {
		s.logger.Warningf("Session %s failed to send request %d: %v", s.id, id, err)
		r.untrack(id)
		r.msgError(s, msg, common.ReasonTransportError)
	}
}

func (r *EventReactor) response(ev *transport.Event) {
	f, ok := r.untrack(ev.RequestID)
	if !ok {
		r.logger.Debugf("Ignoring reply to unknown request %d", ev.RequestID)
		return
	}

	elapsed := time.Since(f.start)
	f.session.rtt.Update(elapsed)
	r.stats.rtt.Update(elapsed)

	if err := f.msg.Complete(ev.Data); err != nil {
		f.session.logger.Warningf("Reply to request %d of session %s dropped: %v", ev.RequestID, f.session.id, err)
		r.msgError(f.session, f.msg, common.ReasonBufferOverflow)
		return
	}
	r.stats.responses.Inc()
	f.session.callbacks.OnResponse(f.msg)
}

// untrack removes a request from the in-flight tables
func (r *EventReactor) untrack(id uint64) (*flight, bool) {
	f, ok := r.inflight[id]
	if !ok {
		return nil, false
	}
	delete(r.inflight, id)
	delete(f.session.inflight, id)
	r.inflightCount.Add(-1)
	return f, true
}

// msgError fails a sent message and passes it to the session
func (r *EventReactor) msgError(s *Session, msg *msgpool.Message, reason common.EventReason) {
	if err := msg.Fail(); err != nil {
		s.logger.Errorf("Session %s: %v", s.id, err)
	}
	r.stats.msgErrors.Inc()
	s.callbacks.OnMsgError(msg, reason)
}

// teardown closes a session. In-flight requests are flushed in the order they were
// sent, followed by the backlog, then the session event is reported.
func (r *EventReactor) teardown(s *Session, event common.EventName, reason common.EventReason, disconnect bool) {
	if s.state == sessionClosed {
		return
	}
	connected := s.state == sessionConnecting || s.state == sessionEstablished

	s.closing.Store(true)
	s.state = sessionClosed
	delete(r.pending, s)
	if _, ok := r.sessions[s.handle]; ok && connected {
		delete(r.sessions, s.handle)
		r.activeSessions.Add(-1)
	}
	if disconnect && connected {
		if err := r.transport.Disconnect(s.handle); err != nil {
			s.logger.Debugf("Session %s: disconnect: %v", s.id, err)
		}
	}

	ids := make([]uint64, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if f, ok := r.untrack(id); ok {
			r.msgError(s, f.msg, common.ReasonMsgFlushed)
		}
	}
	for s.backlog.Length() > 0 {
		r.msgError(s, s.backlog.Remove().(*msgpool.Message), common.ReasonMsgFlushed)
	}
	s.rtt.Stop()

	s.logger.Infof("Session %s to %s closed (%s, %s)", s.id, s.endpoint, event, reason)
	if r.stopping.Load() {
		return
	}
	s.callbacks.OnSessionEvent(event, reason)
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// reclaim returns a message the application will never see again to its pool
func (r *EventReactor) reclaim(msg *msgpool.Message) {
	if msg.State() == msgpool.StateSent {
		_ = msg.Fail()
	}
	if err := msg.ReturnToPool(); err != nil {
		r.logger.Errorf("Failed to reclaim message %d: %v", msg.Index(), err)
		return
	}
	r.stats.reclaimed.Inc()
}

// shutdown closes the queues and the transport and settles every send the reactor
// still holds. With notify the sends are reported with OnMsgError(ReasonMsgFlushed),
// otherwise their messages are returned to the pools. A callback that panics ends
// the notification, the remaining messages are reclaimed.
func (r *EventReactor) shutdown(notify bool) (err error) {
	sends := r.drain()

	if err := r.transport.Close(); err != nil {
		r.logger.Warningf("Failed to close transport: %v", err)
	}

	flushed := 0
	for i, h := range sends {
		if !notify {
			r.reclaim(h.msg)
			continue
		}
		if err = r.flush(h); err != nil {
			r.logger.Errorf("Reactor %s: %v", r.name, err)
			for _, rest := range sends[i+1:] {
				r.reclaim(rest.msg)
			}
			break
		}
		flushed++
	}

	if flushed > 0 {
		r.logger.Infof("Reactor %s flushed %d messages that were still queued or in flight", r.name, flushed)
	}
	if reclaimed := len(sends) - flushed; reclaimed > 0 {
		r.logger.Warningf("Reactor %s reclaimed %d messages without a callback", r.name, reclaimed)
	}

	close(r.done)
	return err
}

// drain closes both queues and every session and collects the accepted sends that
// have no outcome yet. Per session they keep the order they were sent in: in flight,
// backlog, then still queued.
func (r *EventReactor) drain() []held {
	r.submissions.Close()
	r.completions.Close()

	var sends []held

	ids := make([]uint64, 0, len(r.inflight))
	for id := range r.inflight {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		f, _ := r.untrack(id)
		sends = append(sends, held{session: f.session, msg: f.msg})
	}

	sessions := make([]*Session, 0, len(r.sessions)+len(r.pending))
	for h, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, h)
		r.activeSessions.Add(-1)
	}
	for s := range r.pending {
		sessions = append(sessions, s)
		delete(r.pending, s)
	}
	for _, s := range sessions {
		for s.backlog.Length() > 0 {
			sends = append(sends, held{session: s, msg: s.backlog.Remove().(*msgpool.Message)})
		}
		s.closing.Store(true)
		s.state = sessionClosed
		s.rtt.Stop()
	}

	collect := func(t *task) {
		t.session.closing.Store(true)
		if t.kind == taskSend {
			sends = append(sends, held{session: t.session, msg: t.msg})
		}
	}
	for r.local.Length() > 0 {
		collect(r.local.Remove().(*task))
	}
	for t := range r.submissions.Recv() {
		collect(t)
	}
	for range r.completions.Recv() {
	}

	return sends
}

// flush reports one held send, a panic of the callback is returned as error
func (r *EventReactor) flush(h held) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked while flushing: %v", p)
		}
	}()
	r.msgError(h.session, h.msg, common.ReasonMsgFlushed)
	return nil
}
