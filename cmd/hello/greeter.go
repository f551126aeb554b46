package hello

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/xio/lib/msgpool"
	"github.com/ValentinKolb/xio/rpc/client"
	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cli")

// ErrUnanswered is returned if a greeting did not get a reply
var ErrUnanswered = errors.New("not every greeting was answered")

// closeGrace is how long an interrupted run waits for the session to close before the reactor is stopped
const closeGrace = 2 * time.Second

// Options configures a greeting run
type Options struct {
	// Initial greetings are queued before the reactor starts
	Initial []string
	// Greeting is sent Count times by the producer, once per Interval
	Greeting string
	Count    int
	Interval time.Duration
}

// Result summarizes a greeting run
type Result struct {
	Sent    int64
	Replied int64
	Failed  int64
	RTT     time.Duration // mean round trip time
}

// greeter implements client.Callbacks, the callbacks run on the reactor goroutine
type greeter struct {
	pool    *msgpool.MsgPool
	reactor *client.EventReactor
	session *client.Session

	sent      atomic.Int64
	replied   atomic.Int64
	failed    atomic.Int64
	broken    atomic.Bool // the session ended with an error
	producing atomic.Bool
}

// Greet connects a session over tr, sends the greetings of opts and prints every reply.
// It returns once all greetings were answered and the session is closed, or after ctx
// was cancelled and the session was shut down. Everything it acquired is released on return.
func Greet(ctx context.Context, tr transport.IRPCClientTransport, config *common.ClientConfig, opts Options) (Result, error) {
	pool, err := msgpool.New(config.ToPoolConfig())
	if err != nil {
		_ = tr.Close()
		return Result{}, err
	}

	g := &greeter{
		pool:    pool,
		reactor: client.NewReactor(tr, client.WithName("hello"), client.WithQueueSize(config.QueueSize)),
	}
	g.producing.Store(true)

	g.session, err = client.Connect(g.reactor, config.Transport.Endpoint, g)
	if err != nil {
		g.reactor.Stop()
		_ = pool.Destroy()
		return Result{}, err
	}

	for _, text := range opts.Initial {
		if err := g.greet(ctx, text); err != nil {
			Logger.Errorf("Failed to queue %q: %v", text, err)
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- g.reactor.Run()
	}()

	prodCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.produce(prodCtx, opts)
	}()

	select {
	case err = <-runErr:
	case <-ctx.Done():
		Logger.Infof("Interrupted, closing session %s", g.session.ID())
		_ = g.session.Close()
		select {
		case err = <-runErr:
		case <-time.After(closeGrace):
			Logger.Warningf("Session %s did not close in time, stopping the reactor", g.session.ID())
			g.reactor.Stop()
			err = <-runErr
		}
	}
	cancel()
	wg.Wait()

	if destroyErr := pool.Destroy(); destroyErr != nil {
		Logger.Errorf("Failed to destroy pool: %v", destroyErr)
	}

	res := Result{
		Sent:    g.sent.Load(),
		Replied: g.replied.Load(),
		Failed:  g.failed.Load(),
		RTT:     time.Duration(g.session.RTT().Mean()),
	}
	if err != nil {
		return res, err
	}
	if g.broken.Load() || res.Failed > 0 || res.Replied < res.Sent {
		return res, fmt.Errorf("%w: %d of %d replied", ErrUnanswered, res.Replied, res.Sent)
	}
	return res, nil
}

// greet acquires a message, writes text into it and sends it
func (g *greeter) greet(ctx context.Context, text string) error {
	msg, err := g.pool.AcquireContext(ctx)
	if err != nil {
		return err
	}
	if _, err := msg.WriteString(text); err != nil {
		_ = msg.ReturnToPool()
		return err
	}

	// counted first, the reply may arrive before Send returns
	g.sent.Add(1)
	if err := g.session.Send(msg); err != nil {
		g.sent.Add(-1)
		_ = msg.ReturnToPool()
		return err
	}
	return nil
}

// produce sends opts.Greeting every opts.Interval until opts.Count greetings were sent
func (g *greeter) produce(ctx context.Context, opts Options) {
	defer func() {
		g.producing.Store(false)
		g.finishIfDone()
	}()
	if opts.Count <= 0 {
		return
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < opts.Count; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := g.greet(ctx, opts.Greeting); err != nil {
			if !errors.Is(err, context.Canceled) {
				Logger.Warningf("Producer stopped: %v", err)
			}
			return
		}
	}
}

// finishIfDone closes the session once the producer is done and every greeting is settled
func (g *greeter) finishIfDone() {
	if g.producing.Load() {
		return
	}
	if g.replied.Load()+g.failed.Load() < g.sent.Load() {
		return
	}
	_ = g.session.Close()
}

// ------ Interface Methods (docu see client.Callbacks)

func (g *greeter) OnSessionEstablished() {
	Logger.Infof("[SUCCESS] Session %s established to %s", g.session.ID(), g.session.Endpoint())
}

func (g *greeter) OnResponse(msg *msgpool.Message) {
	data, err := msg.ReadAll()
	if err != nil {
		Logger.Errorf("Failed to read reply: %v", err)
	} else {
		Logger.Infof("[SUCCESS] Got a message! %s", data)
	}
	_ = msg.ReturnToPool()

	g.replied.Add(1)
	g.finishIfDone()
}

func (g *greeter) OnSessionEvent(event common.EventName, reason common.EventReason) {
	if event == common.EventSessionClosed {
		Logger.Infof("[EVENT] Got event %s because of %s", event, reason)
	} else {
		Logger.Errorf("[ERROR] Got event %s because of %s", event, reason)
		g.broken.Store(true)
	}
	// last callback of the only session
	g.reactor.Stop()
}

func (g *greeter) OnMsgError(msg *msgpool.Message, reason common.EventReason) {
	if reason == common.ReasonMsgFlushed {
		Logger.Warningf("[EVENT] Got message error %s, session closing: %t", reason, g.session.IsClosing())
	} else {
		Logger.Errorf("[ERROR] Got message error %s", reason)
	}
	_ = msg.ReturnToPool()

	g.failed.Add(1)
	g.finishIfDone()
}
