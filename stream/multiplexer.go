package stream

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/toolmesh/logging"
)

const (
	// DefaultTeardownDelay is how long an idle channel survives its last
	// terminal update so late subscribers can still observe it.
	DefaultTeardownDelay = time.Second

	defaultQueueSize = 256
)

// Options configures a Multiplexer.
type Options struct {
	TeardownDelay time.Duration
	QueueSize     int
	Logger        logging.Logger
}

// Multiplexer owns the per-tool channels and the process wide sinks.
type Multiplexer struct {
	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool

	sinkMu sync.RWMutex
	global map[string]Handler // fast path, called from Publish
	all    map[string]Handler // broadcast path, attached to every channel

	opts   Options
	logger logging.Logger
	wg     sync.WaitGroup
}

// NewMultiplexer creates an empty Multiplexer.
func NewMultiplexer(optFns ...func(o *Options)) *Multiplexer {
	opts := Options{
		TeardownDelay: DefaultTeardownDelay,
		QueueSize:     defaultQueueSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	return &Multiplexer{
		channels: make(map[string]*Channel),
		global:   make(map[string]Handler),
		all:      make(map[string]Handler),
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Channel returns the channel for toolName, creating it when absent or torn down.
func (m *Multiplexer) Channel(toolName string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[toolName]; ok {
		return ch
	}

	ch := newChannel(m, toolName)
	if m.closed {
		ch.closed = true
		close(ch.queue)
		return ch
	}
	m.channels[toolName] = ch

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ch.dispatch()
	}()

	m.logger.Debug("stream.channel.created", "tool", toolName)

	return ch
}

// Channels lists the names of live channels in lexical order.
func (m *Multiplexer) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Subscribe attaches h to the channel of toolName. The returned function
// detaches it.
func (m *Multiplexer) Subscribe(toolName string, h Handler) func() {
	return m.Channel(toolName).Subscribe(h)
}

// SubscribeGlobal registers a fast path sink. It is called synchronously by
// Publish for every update of every channel, including channels created
// after the subscription.
func (m *Multiplexer) SubscribeGlobal(h Handler) func() {
	id := uuid.NewString()

	m.sinkMu.Lock()
	m.global[id] = h
	m.sinkMu.Unlock()

	return func() {
		m.sinkMu.Lock()
		delete(m.global, id)
		m.sinkMu.Unlock()
	}
}

// SubscribeAll attaches h to the broadcast path of every channel, existing
// and future ones. Delivery is asynchronous.
func (m *Multiplexer) SubscribeAll(h Handler) func() {
	id := uuid.NewString()

	m.sinkMu.Lock()
	m.all[id] = h
	m.sinkMu.Unlock()

	return func() {
		m.sinkMu.Lock()
		delete(m.all, id)
		m.sinkMu.Unlock()
	}
}

// Publish pushes u to the channel of toolName and to the global sinks. It
// returns false when the update was suppressed: a second terminal update or
// a progress update after a terminal one for the same execution.
func (m *Multiplexer) Publish(toolName string, u Update) bool {
	if m.isClosed() {
		return false
	}

	u.ToolName = toolName
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	for {
		ch := m.Channel(toolName)

		accepted, live := ch.enqueue(&u)
		if !live {
			if m.isClosed() {
				return false
			}
			continue // torn down concurrently; the next Channel call recreates it
		}
		if !accepted {
			m.logger.Debug("stream.update.suppressed", "tool", toolName, "execution_id", u.ExecutionID, "kind", string(u.Kind))
			return false
		}
		break
	}

	m.sinkMu.RLock()
	sinks := make([]Handler, 0, len(m.global))
	for _, h := range m.global {
		sinks = append(sinks, h)
	}
	m.sinkMu.RUnlock()

	for _, h := range sinks {
		m.deliver(h, u, "global")
	}

	return true
}

func (m *Multiplexer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// Close stops every dispatcher after draining queued updates.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	chans := make([]*Channel, 0, len(m.channels))
	for name, ch := range m.channels {
		chans = append(chans, ch)
		delete(m.channels, name)
	}
	m.mu.Unlock()

	for _, ch := range chans {
		ch.shutdown()
	}

	m.wg.Wait()
}

func (m *Multiplexer) broadcastSinks() []Handler {
	m.sinkMu.RLock()
	defer m.sinkMu.RUnlock()

	sinks := make([]Handler, 0, len(m.all))
	for _, h := range m.all {
		sinks = append(sinks, h)
	}
	return sinks
}

// deliver invokes h, logging errors and recovering panics.
func (m *Multiplexer) deliver(h Handler, u Update, path string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("stream.subscriber.panic", "tool", u.ToolName, "kind", string(u.Kind), "path", path, "recover", fmt.Sprint(r))
		}
	}()

	if err := h(u); err != nil {
		m.logger.Warn("stream.subscriber.error", "tool", u.ToolName, "kind", string(u.Kind), "path", path, "error", err.Error())
	}
}

// removeIfIdle tears ch down when it is still the current channel for its
// tool and has stayed idle since the teardown was scheduled.
func (m *Multiplexer) removeIfIdle(ch *Channel, generation uint64) {
	m.mu.Lock()
	current, ok := m.channels[ch.name]
	if !ok || current != ch || !ch.idleSince(generation) {
		m.mu.Unlock()
		return
	}
	delete(m.channels, ch.name)
	m.mu.Unlock()

	ch.shutdown()
	m.logger.Debug("stream.channel.removed", "tool", ch.name)
}
