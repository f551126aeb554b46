package msgpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

const (
	defaultName = "default"
)

// Config describes the shape of a pool
type Config struct {
	// Name is used in log lines and as metrics label
	Name string
	// Capacity is the maximum number of messages in use at the same time
	Capacity int
	// InSize is the size of the inbound (reply) region of every message in bytes
	InSize int
	// OutSize is the size of the outbound (request) region of every message in bytes
	OutSize int
	// Prealloc is the number of messages backed by the shared arena at creation time.
	// The remaining messages allocate their regions on first use. Values <= 0 or
	// greater than Capacity preallocate everything.
	Prealloc int
	// Blocking makes Acquire wait for a release instead of failing with ErrPoolExhausted
	Blocking bool
}

// Option configures optional collaborators of a pool
type Option func(p *MsgPool)

// WithLogger sets the logger of the pool (default: logger "msgpool")
func WithLogger(l logger.ILogger) Option {
	return func(p *MsgPool) {
		p.logger = l
	}
}

// WithMetrics registers the pool metrics in the given set instead of a private one
func WithMetrics(set *metrics.Set) Option {
	return func(p *MsgPool) {
		p.metricSet = set
	}
}

// MsgPool is a fixed collection of reusable messages
type MsgPool struct {
	config    Config
	msgs      []*Message
	arena     []byte
	free      chan *Message
	done      chan struct{} // closed by Destroy, wakes blocked acquirers
	mu        sync.Mutex    // protects inUse and destroyed
	inUse     int
	destroyed bool
	logger    logger.ILogger
	metricSet *metrics.Set
	stats     poolMetrics
}

// New creates a pool and allocates its arena
func New(config Config, opts ...Option) (*MsgPool, error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("invalid pool capacity %d", config.Capacity)
	}
	if config.InSize < 0 || config.OutSize < 0 {
		return nil, fmt.Errorf("invalid message sizes in=%d out=%d", config.InSize, config.OutSize)
	}
	if config.Name == "" {
		config.Name = defaultName
	}
	if config.Prealloc <= 0 || config.Prealloc > config.Capacity {
		config.Prealloc = config.Capacity
	}

	p := &MsgPool{
		config: config,
		msgs:   make([]*Message, config.Capacity),
		free:   make(chan *Message, config.Capacity),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.GetLogger("msgpool")
	}
	if p.metricSet == nil {
		p.metricSet = metrics.NewSet()
	}
	p.stats = newPoolMetrics(p.metricSet, p)

	// one contiguous arena, every preallocated message gets a fixed slice of it
	slotSize := config.InSize + config.OutSize
	p.arena = make([]byte, config.Prealloc*slotSize)

	for i := 0; i < config.Capacity; i++ {
		m := &Message{pool: p, index: i}
		if i < config.Prealloc {
			m.bind(p.arena[i*slotSize : (i+1)*slotSize : (i+1)*slotSize])
		}
		p.msgs[i] = m
		p.free <- m
	}

	p.logger.Debugf("allocated pool %q: capacity=%d, in_size=%d, out_size=%d, prealloc=%d, blocking=%t",
		config.Name, config.Capacity, config.InSize, config.OutSize, config.Prealloc, config.Blocking)

	return p, nil
}

// --------------------------------------------------------------------------
// Pool Operations
// --------------------------------------------------------------------------

// Acquire returns a free message in state acquired.
// A non-blocking pool fails with ErrPoolExhausted if no message is free,
// a blocking pool waits until one is released.
func (p *MsgPool) Acquire() (*Message, error) {
	if p.config.Blocking {
		return p.AcquireContext(context.Background())
	}

	select {
	case <-p.done:
		return nil, ErrPoolDestroyed
	default:
	}

	select {
	case m := <-p.free:
		return p.checkout(m)
	default:
		p.stats.exhausted.Inc()
		return nil, ErrPoolExhausted
	}
}

// AcquireContext waits until a message is free or the context is done.
// It waits regardless of the Blocking setting.
func (p *MsgPool) AcquireContext(ctx context.Context) (*Message, error) {
	select {
	case <-p.done:
		return nil, ErrPoolDestroyed
	default:
	}

	select {
	case m := <-p.free:
		return p.checkout(m)
	case <-p.done:
		return nil, ErrPoolDestroyed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a message to the pool
func (p *MsgPool) Release(m *Message) error {
	if m == nil || m.pool != p {
		return ErrForeignMessage
	}

	for {
		current := m.State()
		switch current {
		case StateFree:
			return ErrDoubleRelease
		case StateSent:
			return fmt.Errorf("%w: cannot release a message in state %s", ErrInvalidState, current)
		}
		if m.state.CompareAndSwap(uint32(current), uint32(StateFree)) {
			break
		}
	}

	m.reset()

	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()

	p.stats.released.Inc()
	p.free <- m
	return nil
}

// Destroy marks the pool as destroyed. It fails while any message is not free.
func (p *MsgPool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil
	}
	if p.inUse > 0 {
		return fmt.Errorf("%w: %d of %d messages in use", ErrMessagesOutstanding, p.inUse, p.config.Capacity)
	}

	p.destroyed = true
	close(p.done)
	p.logger.Debugf("destroyed pool %q", p.config.Name)
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Name returns the configured pool name
func (p *MsgPool) Name() string {
	return p.config.Name
}

// Capacity returns the maximum number of messages
func (p *MsgPool) Capacity() int {
	return p.config.Capacity
}

// Outstanding returns the number of messages that are not free
func (p *MsgPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Config returns the effective configuration (with defaults applied)
func (p *MsgPool) Config() Config {
	return p.config
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// checkout hands a message taken from the free list to the caller
func (p *MsgPool) checkout(m *Message) (*Message, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		p.free <- m
		return nil, ErrPoolDestroyed
	}
	p.inUse++
	p.mu.Unlock()

	if !m.bound {
		// slot beyond the preallocated arena
		m.bind(make([]byte, p.config.InSize+p.config.OutSize))
	}

	m.state.Store(uint32(StateAcquired))
	p.stats.acquired.Inc()
	return m, nil
}
