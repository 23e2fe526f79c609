package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel is the broadcast channel of one tool name.
type Channel struct {
	name string
	m    *Multiplexer

	mu         sync.Mutex
	queue      chan Update
	closed     bool
	generation uint64
	active     map[string]struct{} // executions started and not terminated
	terminated map[string]struct{}
	expiry     []terminal // terminated ids in expiry order
	progress   map[string]int
	timer      *time.Timer

	// sendMu is read-held by senders and write-held while the queue is closed.
	sendMu sync.RWMutex

	subMu sync.RWMutex
	subs  map[string]Handler
}

type terminal struct {
	id      string
	expires time.Time
}

func newChannel(m *Multiplexer, name string) *Channel {
	return &Channel{
		name:       name,
		m:          m,
		queue:      make(chan Update, m.opts.QueueSize),
		active:     make(map[string]struct{}),
		terminated: make(map[string]struct{}),
		progress:   make(map[string]int),
		subs:       make(map[string]Handler),
	}
}

// Name returns the tool name of the channel.
func (c *Channel) Name() string { return c.name }

// Subscribe attaches h to this channel. The returned function detaches it.
func (c *Channel) Subscribe(h Handler) func() {
	id := uuid.NewString()

	c.subMu.Lock()
	c.subs[id] = h
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Active returns the number of executions in flight on this channel.
func (c *Channel) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.active)
}

// enqueue applies the per-execution invariants to u and queues it for the
// dispatcher. live is false when the channel has been torn down.
func (c *Channel) enqueue(u *Update) (accepted, live bool) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return false, false
	}

	now := time.Now()
	c.expireTerminated(now)

	if id := u.ExecutionID; id != "" {
		if _, done := c.terminated[id]; done {
			c.mu.Unlock()
			return false, true
		}

		switch {
		case u.Kind == KindProgress:
			u.Progress = clamp(u.Progress)
			if last, ok := c.progress[id]; ok && u.Progress < last {
				u.Progress = last
			}
			c.progress[id] = u.Progress
			c.active[id] = struct{}{}
		case u.Kind.Terminal():
			c.terminated[id] = struct{}{}
			c.expiry = append(c.expiry, terminal{id: id, expires: now.Add(c.retention())})
			delete(c.active, id)
			delete(c.progress, id)
		default:
			c.active[id] = struct{}{}
		}
	}

	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if u.Kind.Terminal() && len(c.active) == 0 {
		c.scheduleTeardown()
	}

	// A full queue must not hold mu: subscribers may call back into c.
	c.sendMu.RLock()
	c.mu.Unlock()
	defer c.sendMu.RUnlock()

	if u.Kind.Terminal() {
		c.queue <- *u
		return true, true
	}

	select {
	case c.queue <- *u:
	default:
		c.m.logger.Warn("stream.update.dropped", "tool", c.name, "execution_id", u.ExecutionID, "kind", string(u.Kind))
	}

	return true, true
}

// retention is how long a terminated execution id keeps suppressing
// further updates.
func (c *Channel) retention() time.Duration {
	if d := c.m.opts.TeardownDelay; d > 0 {
		return d
	}
	return DefaultTeardownDelay
}

// expireTerminated forgets terminated ids whose retention has elapsed.
// Callers hold mu.
func (c *Channel) expireTerminated(now time.Time) {
	n := 0
	for n < len(c.expiry) && !now.Before(c.expiry[n].expires) {
		delete(c.terminated, c.expiry[n].id)
		n++
	}
	if n > 0 {
		c.expiry = append(c.expiry[:0], c.expiry[n:]...)
	}
}

// terminatedCount returns how many terminated ids are still retained.
func (c *Channel) terminatedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireTerminated(time.Now())
	return len(c.terminated)
}

func (c *Channel) scheduleTeardown() {
	delay := c.m.opts.TeardownDelay
	if delay <= 0 {
		return
	}

	c.subMu.RLock()
	hasSubs := len(c.subs) > 0
	c.subMu.RUnlock()
	if hasSubs {
		return
	}

	gen := c.generation
	c.timer = time.AfterFunc(delay, func() { c.m.removeIfIdle(c, gen) })
}

func (c *Channel) idleSince(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation == generation && len(c.active) == 0
}

func (c *Channel) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	c.sendMu.Lock()
	close(c.queue)
	c.sendMu.Unlock()
}

// dispatch serves the broadcast path until the queue is closed.
func (c *Channel) dispatch() {
	for u := range c.queue {
		c.subMu.RLock()
		handlers := make([]Handler, 0, len(c.subs))
		for _, h := range c.subs {
			handlers = append(handlers, h)
		}
		c.subMu.RUnlock()

		handlers = append(handlers, c.m.broadcastSinks()...)

		for _, h := range handlers {
			c.m.deliver(h, u, "broadcast")
		}
	}
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
