package ft60x

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/ring"
)

// ErrStreamClosed is returned by Stream.Next after Close.
var ErrStreamClosed = errors.New("ft60x: stream closed")

// Stream is a continuous read session over a fixed ring of buffers. A
// worker goroutine fills buffers from the device; Next hands each
// filled buffer to the caller in order. The buffer lent to Next is
// reused once the callback returns.
type Stream struct {
	producer *ring.Producer[[]byte]
	consumer *ring.Consumer[[]byte]

	cancel     context.CancelFunc
	workerDone chan struct{}

	mu       sync.Mutex
	fatalErr error
	closed   bool
}

// ReadStream switches the device into streaming mode and starts a
// fixed-ring session. Each buffer holds bufferBytes, which must be a
// positive multiple of the block size.
func (d *Device) ReadStream(bufferBytes int) (*Stream, error) {
	if bufferBytes <= 0 || bufferBytes%d.blockSize != 0 {
		return nil, fmt.Errorf("ft60x: buffer size %d must be a positive multiple of block size %d: %w",
			bufferBytes, d.blockSize, pkg.ErrInvalidParameter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.setStreamingMode(ctx); err != nil {
		cancel()
		return nil, err
	}

	producer, consumer, err := ring.New(d.ringDepth, func() []byte {
		return make([]byte, bufferBytes)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Stream{
		producer:   producer,
		consumer:   consumer,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	go s.fillLoop(ctx, d)

	pkg.LogInfo(pkg.ComponentStream, "stream started",
		"buffer_bytes", bufferBytes, "ring_depth", d.ringDepth, "window", d.window)
	return s, nil
}

// fillLoop is the worker: it fills each ring slot from the device with
// a fresh transfer queue per fill and publishes it to the consumer.
func (s *Stream) fillLoop(ctx context.Context, d *Device) {
	defer close(s.workerDone)
	defer s.producer.Close()

	for {
		q, err := d.transport.NewTransferQueue(dataEndpoint)
		if err != nil {
			s.fail(fmt.Errorf("ft60x: open transfer queue: %w", err))
			return
		}

		err = s.producer.Produce(func(slot *[]byte) error {
			return fillWindowed(ctx, q, *slot, d.blockSize, d.window)
		})
		q.Close()

		switch {
		case err == nil:
		case errors.Is(err, ring.ErrCancelled), errors.Is(err, context.Canceled):
			return
		default:
			s.fail(err)
			return
		}
	}
}

// fail records the first fatal error and logs it.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
		pkg.LogError(pkg.ComponentStream, "stream failed", "error", err)
	}
	s.mu.Unlock()
}

// Next blocks for the next filled buffer and invokes fn with it. The
// slice is only valid during the callback. After Close, Next returns
// ErrStreamClosed; after a device failure it returns that error.
func (s *Stream) Next(fn func(buf []byte)) error {
	err := s.consumer.Consume(func(slot *[]byte) { fn(*slot) })
	if err == nil {
		return nil
	}

	if fatal := s.Err(); fatal != nil {
		return fatal
	}
	return ErrStreamClosed
}

// Err reports the fatal error that stopped the worker, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Close stops the session: the worker is cancelled and waited for, and
// pending buffers are discarded. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.consumer.Close()
	<-s.workerDone
	pkg.LogDebug(pkg.ComponentStream, "stream closed")
	return nil
}
