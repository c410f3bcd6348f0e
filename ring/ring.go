package ring

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by Produce and Consume after either endpoint
// of the channel has been closed.
var ErrCancelled = errors.New("ring: channel cancelled")

// core is the single owner of the slot storage and the cancellation
// state shared by one producer/consumer pair.
type core[T any] struct {
	slots    []T
	capacity uint64

	// writeFeed carries the producer's position after each publication,
	// ackFeed the consumer's position after each acknowledgement. Both
	// are buffered one beyond capacity; the position invariant bounds
	// the number of unread messages per feed by the capacity, so feed
	// sends never block.
	writeFeed chan uint64
	ackFeed   chan uint64

	done chan struct{}
	once sync.Once
}

func (c *core[T]) cancel() {
	c.once.Do(func() { close(c.done) })
}

// New creates a channel with the given capacity, filling each slot with
// newSlot(). Capacity must be at least 2: a single shared slot should
// be a mutex-guarded value, not a ring.
func New[T any](capacity int, newSlot func() T) (*Producer[T], *Consumer[T], error) {
	if capacity < 2 {
		return nil, nil, fmt.Errorf("ring: capacity %d too small, need at least 2 (use a mutex-guarded value for a single slot)", capacity)
	}

	c := &core[T]{
		slots:     make([]T, capacity),
		capacity:  uint64(capacity),
		writeFeed: make(chan uint64, capacity+1),
		ackFeed:   make(chan uint64, capacity+1),
		done:      make(chan struct{}),
	}
	for i := range c.slots {
		c.slots[i] = newSlot()
	}

	return &Producer[T]{core: c}, &Consumer[T]{core: c}, nil
}

// Producer is the writing endpoint of a channel. It is not safe for
// concurrent use; a second simultaneous Produce call panics.
type Producer[T any] struct {
	core     *core[T]
	writePos uint64 // next slot to write, advanced only here
	readAck  uint64 // last position acknowledged by the consumer
	busy     atomic.Bool
}

// Produce blocks until the slot at the producer's position is free,
// then invokes fn with exclusive access to it. If fn returns nil the
// slot is published to the consumer; a non-nil error aborts the
// publication (the consumer never observes the slot contents) and is
// returned unchanged.
//
// Produce returns ErrCancelled if the channel is cancelled before a
// slot becomes free.
func (p *Producer[T]) Produce(fn func(slot *T) error) error {
	if !p.busy.CompareAndSwap(false, true) {
		panic("ring: concurrent Produce on a single Producer")
	}
	defer p.busy.Store(false)

	for p.writePos-p.readAck >= p.core.capacity {
		select {
		case <-p.core.done:
			return ErrCancelled
		case pos := <-p.core.ackFeed:
			p.readAck = pos
		}
	}
	select {
	case <-p.core.done:
		return ErrCancelled
	default:
	}

	if err := fn(&p.core.slots[p.writePos%p.core.capacity]); err != nil {
		return err
	}

	p.writePos++
	p.core.writeFeed <- p.writePos
	return nil
}

// Close cancels the channel. It is idempotent and never fails; the
// error return exists so the endpoint satisfies io.Closer.
func (p *Producer[T]) Close() error {
	p.core.cancel()
	return nil
}

// Consumer is the reading endpoint of a channel. It is not safe for
// concurrent use; a second simultaneous Consume call panics.
type Consumer[T any] struct {
	core       *core[T]
	readPos    uint64 // next slot to read, advanced only here
	writeKnown uint64 // last position published by the producer
	busy       atomic.Bool
}

// Consume blocks until a published slot is available, then invokes fn
// with access to it. After fn returns the slot is acknowledged back to
// the producer and the consumer's position advances. The slot reference
// must not be retained beyond the callback.
//
// Consume returns ErrCancelled if the channel is cancelled before a
// slot is published.
func (c *Consumer[T]) Consume(fn func(slot *T)) error {
	if !c.busy.CompareAndSwap(false, true) {
		panic("ring: concurrent Consume on a single Consumer")
	}
	defer c.busy.Store(false)

	for c.readPos >= c.writeKnown {
		select {
		case <-c.core.done:
			return ErrCancelled
		case pos := <-c.core.writeFeed:
			c.writeKnown = pos
		}
	}
	select {
	case <-c.core.done:
		return ErrCancelled
	default:
	}

	fn(&c.core.slots[c.readPos%c.core.capacity])

	c.readPos++
	c.core.ackFeed <- c.readPos
	return nil
}

// Close cancels the channel. It is idempotent and never fails; the
// error return exists so the endpoint satisfies io.Closer.
func (c *Consumer[T]) Close() error {
	c.core.cancel()
	return nil
}
