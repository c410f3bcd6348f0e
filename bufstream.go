package ft60x

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// errWorkerStop signals a clean worker shutdown initiated by Close.
var errWorkerStop = errors.New("ft60x: worker stopped")

// inflightBuffer is one caller buffer being filled, with its own
// transfer queue so completions never mix across buffers.
type inflightBuffer struct {
	buf       []byte
	q         usb.TransferQueue
	submitted int
	completed int
}

// BufferStream is a continuous read session with caller-owned buffers.
// The caller submits empty buffers, receives them back filled on Full
// in submission order, and resubmits them once drained. Unlike Stream,
// buffer memory never belongs to the session, so the caller can hold
// filled buffers as long as it likes.
type BufferStream struct {
	empty chan []byte
	full  chan []byte

	blockSize int

	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
	workerDone chan struct{}

	mu       sync.Mutex
	fatalErr error
}

// StreamBuffers switches the device into streaming mode and starts a
// recycling session. depth bounds how many submitted buffers can wait
// unprocessed.
func (d *Device) StreamBuffers(depth int) (*BufferStream, error) {
	if depth < 1 {
		return nil, fmt.Errorf("ft60x: stream depth %d: %w", depth, pkg.ErrInvalidParameter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.setStreamingMode(ctx); err != nil {
		cancel()
		return nil, err
	}

	b := &BufferStream{
		empty:      make(chan []byte, depth),
		full:       make(chan []byte, depth),
		blockSize:  d.blockSize,
		cancel:     cancel,
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
	go b.worker(ctx, d)

	pkg.LogInfo(pkg.ComponentStream, "buffer stream started",
		"depth", depth, "window", d.window)
	return b, nil
}

// Submit hands an empty buffer to the session. The buffer length must
// be a positive multiple of the block size. The session owns the
// buffer until it reappears on Full.
func (b *BufferStream) Submit(buf []byte) error {
	if len(buf) == 0 || len(buf)%b.blockSize != 0 {
		return fmt.Errorf("ft60x: buffer length %d must be a positive multiple of block size %d: %w",
			len(buf), b.blockSize, pkg.ErrInvalidParameter)
	}
	// The empty channel may have free capacity after teardown (the
	// worker exits without draining it), so a closed session must be
	// detected before attempting the send or the buffer is swallowed.
	select {
	case <-b.done:
		return ErrStreamClosed
	default:
	}
	select {
	case b.empty <- buf:
		return nil
	case <-b.done:
		return ErrStreamClosed
	}
}

// Full returns the channel of filled buffers. It is closed when the
// worker exits; check Err afterwards to distinguish Close from a
// device failure.
func (b *BufferStream) Full() <-chan []byte {
	return b.full
}

// Err reports the fatal error that stopped the worker, if any.
func (b *BufferStream) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatalErr
}

// Close stops the session. Buffers still in flight are discarded, not
// delivered. Idempotent.
func (b *BufferStream) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.cancel()
	})
	<-b.workerDone
	return nil
}

// worker pipelines buffer fills: while the oldest buffers drain their
// completions, the newest buffer's requests are already being
// submitted, keeping up to the window outstanding across buffers at
// all times. Buffers are published in submission order.
func (b *BufferStream) worker(ctx context.Context, d *Device) {
	pending := queue.New() // of *inflightBuffer, oldest first
	outstanding := 0

	defer func() {
		for pending.Length() > 0 {
			p := pending.Remove().(*inflightBuffer)
			p.q.Close()
		}
		close(b.full)
		close(b.workerDone)
	}()

	for {
		buf, err := b.nextEmpty(ctx, pending, &outstanding)
		if err != nil {
			if !errors.Is(err, errWorkerStop) {
				b.fail(err)
			}
			return
		}

		q, err := d.transport.NewTransferQueue(dataEndpoint)
		if err != nil {
			b.fail(fmt.Errorf("ft60x: open transfer queue: %w", err))
			return
		}
		cur := &inflightBuffer{buf: buf, q: q}
		pending.Add(cur)

		for offset := 0; offset < len(buf); offset += b.blockSize {
			for outstanding >= d.window {
				if err := b.retireHead(ctx, pending, &outstanding); err != nil {
					if !errors.Is(err, errWorkerStop) {
						b.fail(err)
					}
					return
				}
			}
			if err := cur.q.Submit(buf[offset : offset+b.blockSize]); err != nil {
				b.fail(fmt.Errorf("ft60x: submit bulk read: %w", err))
				return
			}
			cur.submitted++
			outstanding++
		}
	}
}

// nextEmpty acquires the next caller buffer. While none is available it
// keeps draining completions of in-flight buffers so the pipeline never
// stalls waiting for the consumer.
func (b *BufferStream) nextEmpty(ctx context.Context, pending *queue.Queue, outstanding *int) ([]byte, error) {
	for {
		select {
		case buf := <-b.empty:
			return buf, nil
		case <-b.done:
			return nil, errWorkerStop
		default:
		}

		if pending.Length() == 0 {
			select {
			case buf := <-b.empty:
				return buf, nil
			case <-b.done:
				return nil, errWorkerStop
			}
		}

		if err := b.retireHead(ctx, pending, outstanding); err != nil {
			return nil, err
		}
	}
}

// retireHead waits for one completion on the oldest in-flight buffer.
// A fully drained head is published to Full and removed.
func (b *BufferStream) retireHead(ctx context.Context, pending *queue.Queue, outstanding *int) error {
	head := pending.Peek().(*inflightBuffer)

	c, err := head.q.WaitAny(ctx)
	if errors.Is(err, usb.ErrNoPending) {
		if head.completed != head.submitted {
			return fmt.Errorf("ft60x: %d of %d reads completed: %w",
				head.completed, head.submitted, pkg.ErrIncompleteDrain)
		}
		head.q.Close()
		pending.Remove()
		select {
		case b.full <- head.buf:
			return nil
		case <-b.done:
			return errWorkerStop
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errWorkerStop
		}
		return err
	}
	if c.Actual != len(c.Data) {
		return fmt.Errorf("ft60x: bulk read returned %d of %d bytes: %w",
			c.Actual, len(c.Data), pkg.ErrShortTransfer)
	}
	head.completed++
	*outstanding--
	return nil
}

// fail records the first fatal error and logs it.
func (b *BufferStream) fail(err error) {
	b.mu.Lock()
	if b.fatalErr == nil {
		b.fatalErr = err
		pkg.LogError(pkg.ComponentStream, "buffer stream failed", "error", err)
	}
	b.mu.Unlock()
}
