package bench

import (
	"bytes"
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
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("cli")

// ErrIncomplete is returned if not every request got a reply
var ErrIncomplete = errors.New("benchmark incomplete")

// Options configures a benchmark run
type Options struct {
	Producers int
	Messages  int // per producer
	Payload   int // bytes per request
}

// Report holds the results of a benchmark run
type Report struct {
	Requests int64
	Replies  int64
	Errors   int64
	Duration time.Duration
	RTT      gometrics.Timer // snapshot of the round trip times
}

// Throughput returns the replies per second
func (r Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Replies) / r.Duration.Seconds()
}

// Run sends opts.Producers*opts.Messages requests over one session, the producers share
// the pool so at most its capacity is in flight. Pool and reactor metrics are written to set.
func Run(ctx context.Context, tr transport.IRPCClientTransport, config *common.ClientConfig, opts Options, set *metrics.Set) (Report, error) {
	if opts.Producers <= 0 || opts.Messages <= 0 {
		_ = tr.Close()
		return Report{}, fmt.Errorf("producers and messages must be positive")
	}
	if opts.Payload > config.Pool.OutSize {
		_ = tr.Close()
		return Report{}, fmt.Errorf("payload of %d bytes does not fit into %d bytes", opts.Payload, config.Pool.OutSize)
	}

	pool, err := msgpool.New(config.ToPoolConfig(), msgpool.WithMetrics(set))
	if err != nil {
		_ = tr.Close()
		return Report{}, err
	}
	reactor := client.NewReactor(tr,
		client.WithName("bench"),
		client.WithQueueSize(config.QueueSize),
		client.WithMetrics(set),
		client.WithRegistry(gometrics.NewRegistry()),
	)

	total := int64(opts.Producers * opts.Messages)
	var replies, failures atomic.Int64
	var broken atomic.Bool
	var session *client.Session

	settle := func() {
		if replies.Load()+failures.Load() == total {
			_ = session.Close()
		}
	}
	session, err = client.Connect(reactor, config.Transport.Endpoint, client.CallbackFuncs{
		Response: func(msg *msgpool.Message) {
			_ = msg.ReturnToPool()
			replies.Add(1)
			settle()
		},
		MsgError: func(msg *msgpool.Message, reason common.EventReason) {
			Logger.Debugf("Request failed: %s", reason)
			_ = msg.ReturnToPool()
			failures.Add(1)
			settle()
		},
		Event: func(event common.EventName, reason common.EventReason) {
			if event != common.EventSessionClosed {
				Logger.Errorf("Session failed: %s (%s)", event, reason)
				broken.Store(true)
			}
			reactor.Stop()
		},
	})
	if err != nil {
		reactor.Stop()
		_ = pool.Destroy()
		return Report{}, err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- reactor.Run()
	}()

	payload := bytes.Repeat([]byte{'x'}, opts.Payload)
	prodCtx, cancel := context.WithCancel(ctx)
	var requests atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for p := 0; p < opts.Producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < opts.Messages; i++ {
				if err := send(prodCtx, pool, session, payload); err != nil {
					if !errors.Is(err, context.Canceled) {
						Logger.Warningf("Producer stopped: %v", err)
					}
					// unblock the others, the reactor flushes what is in flight
					cancel()
					_ = session.Close()
					return
				}
				requests.Add(1)
			}
		}()
	}

	select {
	case err = <-runErr:
	case <-ctx.Done():
		_ = session.Close()
		reactor.Stop()
		err = <-runErr
	}
	elapsed := time.Since(start)
	cancel()
	wg.Wait()

	if destroyErr := pool.Destroy(); destroyErr != nil {
		Logger.Errorf("Failed to destroy pool: %v", destroyErr)
	}

	report := Report{
		Requests: requests.Load(),
		Replies:  replies.Load(),
		Errors:   failures.Load(),
		Duration: elapsed,
		RTT:      session.RTT().Snapshot(),
	}
	if err != nil {
		return report, err
	}
	if broken.Load() || report.Replies < total {
		return report, fmt.Errorf("%w: %d of %d replies", ErrIncomplete, report.Replies, total)
	}
	return report, nil
}

// send acquires a message, fills it with payload and sends it
func send(ctx context.Context, pool *msgpool.MsgPool, session *client.Session, payload []byte) error {
	msg, err := pool.AcquireContext(ctx)
	if err != nil {
		return err
	}
	if _, err := msg.Write(payload); err != nil {
		_ = msg.ReturnToPool()
		return err
	}
	if err := session.Send(msg); err != nil {
		_ = msg.ReturnToPool()
		return err
	}
	return nil
}
