package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/xio/lib/msgpool"
	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport/loopback"
)

// recorder logs the callbacks of one session in the order they were invoked
type recorder struct {
	mu      sync.Mutex
	entries []string
	notify  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1024)}
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) OnSessionEstablished() {
	r.add("established")
}

func (r *recorder) OnResponse(msg *msgpool.Message) {
	data, _ := msg.ReadAll()
	entry := "response:" + string(data)
	_ = msg.ReturnToPool()
	r.add(entry)
}

func (r *recorder) OnSessionEvent(event common.EventName, reason common.EventReason) {
	r.add(fmt.Sprintf("event:%s:%s", event, reason))
}

func (r *recorder) OnMsgError(msg *msgpool.Message, reason common.EventReason) {
	entry := fmt.Sprintf("error:%s:%s", string(msg.Outbound()), reason)
	_ = msg.ReturnToPool()
	r.add(entry)
}

// wait blocks until n entries were recorded and returns them
func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		r.mu.Lock()
		if len(r.entries) >= n {
			entries := append([]string(nil), r.entries...)
			r.mu.Unlock()
			return entries
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-deadline:
			r.mu.Lock()
			defer r.mu.Unlock()
			t.Fatalf("Timed out waiting for %d callbacks, got %v", n, r.entries)
			return nil
		}
	}
}

func expectEntries(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Unexpected callbacks\n got: %v\nwant: %v", got, want)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestConnectValidation(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	defer r.Stop()

	if _, err := Connect(nil, "peer", newRecorder()); err == nil {
		t.Errorf("Expected an error for a nil reactor")
	}
	if _, err := Connect(r, "peer", nil); err == nil {
		t.Errorf("Expected an error for nil callbacks")
	}
	if _, err := Connect(r, "", newRecorder()); err == nil {
		t.Errorf("Expected an error for an empty endpoint")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.ID().String() == "" || s.Endpoint() != "peer" {
		t.Errorf("Unexpected session identity %s / %s", s.ID(), s.Endpoint())
	}
	startReactor(t, r)
	rec.wait(t, 1)

	payload := "hello world \x00\xff"
	if err := s.Send(acquireWith(t, pool, payload)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	expectEntries(t, rec.wait(t, 2), "established", "response:"+payload)
	if got := s.RTT().Count(); got != 1 {
		t.Errorf("Expected 1 round trip sample, got %d", got)
	}
}

func TestSendBeforeEstablished(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 4)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// queued before the reactor runs, transmitted once the session is established
	for _, payload := range []string{"a", "b", "c"} {
		if err := s.Send(acquireWith(t, pool, payload)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	startReactor(t, r)

	expectEntries(t, rec.wait(t, 4), "established", "response:a", "response:b", "response:c")
}

func TestPoolCapacityTwo(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	rec.wait(t, 1)

	first := acquireWith(t, pool, "one")
	second := acquireWith(t, pool, "two")
	if _, err := pool.Acquire(); !errors.Is(err, msgpool.ErrPoolExhausted) {
		t.Fatalf("Expected ErrPoolExhausted, got %v", err)
	}

	if err := s.Send(first); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// the recorder returns the message to the pool
	rec.wait(t, 2)

	third, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Expected a message after one was returned, got %v", err)
	}
	if err := second.ReturnToPool(); err != nil {
		t.Errorf("ReturnToPool failed: %v", err)
	}
	if err := third.ReturnToPool(); err != nil {
		t.Errorf("ReturnToPool failed: %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	rec.wait(t, 1)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if !s.IsClosing() {
		t.Errorf("Expected the session to be closing")
	}

	msg := acquireWith(t, pool, "late")
	if err := s.Send(msg); !errors.Is(err, ErrSessionClosing) {
		t.Errorf("Expected ErrSessionClosing, got %v", err)
	}
	if got := msg.State(); got != msgpool.StateAcquired {
		t.Errorf("Expected the message to stay acquired, got %s", got)
	}
	if got := pool.Outstanding(); got != 1 {
		t.Errorf("Expected the message to stay checked out, %d outstanding", got)
	}

	expectEntries(t, rec.wait(t, 2), "established", "event:session_closed:session_closed")
}

func TestSendStaleMessage(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	defer r.Stop()
	pool := newTestPool(t, 1)

	s, err := Connect(r, "peer", newRecorder())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msg := acquireWith(t, pool, "x")
	if err := msg.ReturnToPool(); err != nil {
		t.Fatalf("ReturnToPool failed: %v", err)
	}
	if err := s.Send(msg); !errors.Is(err, msgpool.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for a returned message, got %v", err)
	}
	if err := s.Send(nil); err == nil {
		t.Errorf("Expected an error for a nil message")
	}
}

func TestSendAfterStop(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 1)

	s, err := Connect(r, "peer", newRecorder())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	r.Stop()

	msg := acquireWith(t, pool, "x")
	err = s.Send(msg)
	if !errors.Is(err, ErrReactorStopped) {
		t.Errorf("Expected ErrReactorStopped, got %v", err)
	}
	if got := msg.State(); got != msgpool.StateAcquired {
		t.Errorf("Expected the message to be acquired again, got %s", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after stop failed: %v", err)
	}
}

func TestCloseFlushesInflight(t *testing.T) {
	tr := loopback.New(nil)
	r := NewReactor(tr)
	pool := newTestPool(t, 4)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	rec.wait(t, 1)

	tr.DropResponses(true)
	for _, payload := range []string{"a", "b", "c"} {
		if err := s.Send(acquireWith(t, pool, payload)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	waitFor(t, "requests", func() bool { return tr.Requests() == 3 })

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	expectEntries(t, rec.wait(t, 5),
		"established",
		"error:a:msg_flushed",
		"error:b:msg_flushed",
		"error:c:msg_flushed",
		"event:session_closed:session_closed",
	)
	waitFor(t, "messages returned", func() bool { return pool.Outstanding() == 0 })
}

func TestCloseBeforeEstablished(t *testing.T) {
	r := NewReactor(loopback.New(nil))
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Send(acquireWith(t, pool, "queued")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	startReactor(t, r)

	expectEntries(t, rec.wait(t, 2), "error:queued:msg_flushed", "event:session_closed:session_closed")
}

func TestConnectRefused(t *testing.T) {
	tr := loopback.New(nil)
	tr.RefuseEndpoint("nowhere", errors.New("connection refused"))
	r := NewReactor(tr)
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "nowhere", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Send(acquireWith(t, pool, "queued")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	startReactor(t, r)

	// the failure may be observed before the send, both outcomes are reported either way
	got := rec.wait(t, 2)
	sort.Strings(got)
	expectEntries(t, got, "error:queued:msg_flushed", "event:session_error:connect_error")
	if !s.IsClosing() {
		t.Errorf("Expected a failed session to be closing")
	}
	if err := s.Send(acquireWith(t, pool, "late")); !errors.Is(err, ErrSessionClosing) {
		t.Errorf("Expected ErrSessionClosing, got %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	tr := loopback.New(nil)
	r := NewReactor(tr)
	pool := newTestPool(t, 2)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	rec.wait(t, 1)

	tr.DropResponses(true)
	if err := s.Send(acquireWith(t, pool, "pending")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, "request", func() bool { return tr.Requests() == 1 })

	// the first connection of a loopback transport has handle 1
	if err := tr.Fail(1, errors.New("reset by peer")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	expectEntries(t, rec.wait(t, 3),
		"established",
		"error:pending:msg_flushed",
		"event:session_error:transport_error",
	)
}

func TestReplyTooLarge(t *testing.T) {
	big := func(uint64, []byte) []byte { return make([]byte, 200) }
	r := NewReactor(loopback.New(big))
	pool := newTestPool(t, 1)
	rec := newRecorder()

	s, err := Connect(r, "peer", rec)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	rec.wait(t, 1)

	if err := s.Send(acquireWith(t, pool, "x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectEntries(t, rec.wait(t, 2), "established", "error:x:buffer_overflow")
}

func TestSendFromCallback(t *testing.T) {
	const rounds = 50

	// a queue of one slot would block a callback that used the shared queue
	r := NewReactor(loopback.New(nil), WithQueueSize(1))
	pool := newTestPool(t, 1)

	var s *Session
	count := 0
	finished := make(chan int, 1)

	var err error
	s, err = Connect(r, "peer", CallbackFuncs{
		Response: func(msg *msgpool.Message) {
			count++
			_ = msg.ReturnToPool()
			if count == rounds {
				finished <- count
				return
			}
			next, err := pool.Acquire()
			if err != nil {
				finished <- -1
				return
			}
			_, _ = next.WriteString(fmt.Sprintf("round %d", count))
			if err := s.Send(next); err != nil {
				finished <- -1
			}
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)
	if err := s.Send(acquireWith(t, pool, "round 0")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := waitChan(t, "ping pong", finished); got != rounds {
		t.Errorf("Expected %d rounds, got %d", rounds, got)
	}
}

func TestConcurrentSendsObservedOnce(t *testing.T) {
	const (
		producers = 8
		perThread = 200
		total     = producers * perThread
	)

	r := NewReactor(loopback.New(nil), WithQueueSize(64))
	pool, err := msgpool.New(msgpool.Config{Name: t.Name(), Capacity: 32, InSize: 32, OutSize: 32, Blocking: true})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	// owned by the reactor goroutine until all is closed
	seen := make(map[string]int, total)
	terminal := 0
	all := make(chan struct{})

	record := func(msg *msgpool.Message, key string) {
		seen[key]++
		terminal++
		_ = msg.ReturnToPool()
		if terminal == total {
			close(all)
		}
	}

	s, err := Connect(r, "peer", CallbackFuncs{
		Response: func(msg *msgpool.Message) {
			data, _ := msg.ReadAll()
			record(msg, string(data))
		},
		MsgError: func(msg *msgpool.Message, _ common.EventReason) {
			record(msg, string(msg.Outbound()))
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	startReactor(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, producers)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				msg, err := pool.AcquireContext(ctx)
				if err != nil {
					errs <- err
					return
				}
				_, _ = msg.WriteString(fmt.Sprintf("%d-%d", p, i))
				if err := s.Send(msg); err != nil {
					errs <- err
					return
				}
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Producer failed: %v", err)
	}

	waitChan(t, "all terminal callbacks", (<-chan struct{})(all))

	if len(seen) != total {
		t.Errorf("Expected %d distinct messages, got %d", total, len(seen))
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("Message %s observed %d times", key, n)
		}
	}

	r.Stop()
	waitChan(t, "done", r.Done())
	if err := pool.Destroy(); err != nil {
		t.Errorf("Destroy failed: %v", err)
	}
}

func TestSendsRacingStopObservedOnce(t *testing.T) {
	const producers = 8

	tr := loopback.New(nil)
	r := NewReactor(tr, WithQueueSize(128))
	pool, err := msgpool.New(msgpool.Config{Name: t.Name(), Capacity: 64, InSize: 32, OutSize: 32, Blocking: true})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	// owned by the reactor goroutine, read after Run returned
	seen := make(map[string]int)
	record := func(msg *msgpool.Message, key string) {
		seen[key]++
		_ = msg.ReturnToPool()
	}

	established := make(chan struct{}, 1)
	s, err := Connect(r, "peer", CallbackFuncs{
		Established: func() { established <- struct{}{} },
		Response: func(msg *msgpool.Message) {
			data, _ := msg.ReadAll()
			record(msg, string(data))
		},
		MsgError: func(msg *msgpool.Message, _ common.EventReason) {
			record(msg, string(msg.Outbound()))
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	result := startReactor(t, r)
	waitChan(t, "established", established)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	var accepted sync.Map
	var wg sync.WaitGroup
	var count atomic.Int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; ; i++ {
				msg, err := pool.AcquireContext(ctx)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				key := fmt.Sprintf("%d-%d", p, i)
				_, _ = msg.WriteString(key)
				if err := s.Send(msg); err != nil {
					if !errors.Is(err, ErrReactorStopped) {
						t.Errorf("Unexpected Send error: %v", err)
					}
					_ = msg.ReturnToPool()
					return
				}
				accepted.Store(key, struct{}{})
				count.Add(1)
			}
		}(p)
	}

	// every producer has been accepted a few times before the stop
	waitFor(t, "sends", func() bool { return count.Load() >= 500 })
	r.Stop()

	if err := waitRun(t, result); err != nil {
		t.Errorf("Run returned %v", err)
	}
	wg.Wait()

	n := 0
	accepted.Range(func(k, _ any) bool {
		n++
		if got := seen[k.(string)]; got != 1 {
			t.Errorf("Accepted send %s observed %d times", k, got)
		}
		return true
	})
	if len(seen) != n {
		t.Errorf("Observed %d messages, but %d sends were accepted", len(seen), n)
	}
	if err := pool.Destroy(); err != nil {
		t.Errorf("Destroy failed: %v", err)
	}
}
