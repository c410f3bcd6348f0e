//go:build linux

package usbfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// =============================================================================
// Completion Reaper
// =============================================================================

// pendingURB tracks one submitted URB until it is reaped.
type pendingURB struct {
	u         *urb
	q         *transferQueue
	data      []byte // keeps the transfer buffer reachable while the kernel owns it
	deadline  time.Time
	timedOut  bool
	cancelled bool
}

// reaper drains completed URBs for one device. usbfs signals reapable
// URBs by marking the device fd writable, so the reaper multiplexes
// the fd (EPOLLOUT) with an eventfd used for wakeups, and tracks
// userspace deadlines for submitted URBs: usbfs itself applies no
// timeout to asynchronous transfers.
type reaper struct {
	dev     *Device
	epfd    int
	eventfd int

	mu      sync.Mutex
	pending map[*urb]*pendingURB

	done     chan struct{}
	finished chan struct{}
}

// newReaper creates the epoll set and starts the reap loop.
func newReaper(dev *Device) (*reaper, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	r := &reaper{
		dev:      dev,
		epfd:     epfd,
		eventfd:  efd,
		pending:  make(map[*urb]*pendingURB),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	devEvent := unix.EpollEvent{Events: unix.EPOLLOUT, Fd: int32(dev.fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, dev.fd, &devEvent); err != nil {
		r.closeFDs()
		return nil, err
	}
	wakeEvent := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &wakeEvent); err != nil {
		r.closeFDs()
		return nil, err
	}

	go r.loop()
	return r, nil
}

func (r *reaper) closeFDs() {
	unix.Close(r.eventfd)
	unix.Close(r.epfd)
}

// register adds a submitted URB to the pending set and wakes the loop
// so its deadline is taken into account.
func (r *reaper) register(p *pendingURB) {
	r.mu.Lock()
	r.pending[p.u] = p
	r.mu.Unlock()
	r.wake()
}

// unregister forgets a URB whose submission failed.
func (r *reaper) unregister(u *urb) {
	r.mu.Lock()
	delete(r.pending, u)
	r.mu.Unlock()
}

// discardQueue cancels every pending URB belonging to q. The kernel
// delivers discarded URBs through reaping.
func (r *reaper) discardQueue(q *transferQueue) {
	r.mu.Lock()
	for u, p := range r.pending {
		if p.q == q && !p.cancelled {
			p.cancelled = true
			discardURB(r.dev.fd, u)
		}
	}
	r.mu.Unlock()
	r.wake()
}

// wake interrupts the loop's epoll wait.
func (r *reaper) wake() {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	unix.Write(r.eventfd, one[:])
}

// stop terminates the loop and releases the epoll set.
func (r *reaper) stop() {
	close(r.done)
	r.wake()
	<-r.finished
	r.closeFDs()
}

// loop waits for completions and deadline expiry.
func (r *reaper) loop() {
	defer close(r.finished)

	events := make([]unix.EpollEvent, 4)
	for {
		n, err := unix.EpollWait(r.epfd, events, r.nextTimeoutMillis())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			pkg.LogError(pkg.ComponentUSBFS, "epoll wait failed", "error", err)
			return
		}

		select {
		case <-r.done:
			return
		default:
		}

		for i := 0; i < n; i++ {
			if int(events[i].Fd) == r.eventfd {
				r.drainWake()
			}
		}

		r.reap()
		r.expire()
	}
}

// nextTimeoutMillis computes the epoll timeout from the earliest
// pending deadline, or -1 (block forever) with nothing pending.
func (r *reaper) nextTimeoutMillis() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var earliest time.Time
	for _, p := range r.pending {
		if p.timedOut || p.cancelled {
			continue
		}
		if earliest.IsZero() || p.deadline.Before(earliest) {
			earliest = p.deadline
		}
	}
	if earliest.IsZero() {
		return -1
	}
	ms := int(time.Until(earliest) / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	return ms
}

func (r *reaper) drainWake() {
	var buf [8]byte
	unix.Read(r.eventfd, buf[:])
}

// reap drains every completed URB currently available.
func (r *reaper) reap() {
	for {
		u, err := reapURBNDelay(r.dev.fd)
		if err != nil {
			if err == unix.ENODEV || err == unix.ESHUTDOWN {
				r.failAll(pkg.ErrNoDevice)
			}
			return
		}

		r.mu.Lock()
		p := r.pending[u]
		delete(r.pending, u)
		r.mu.Unlock()
		if p == nil {
			continue
		}
		p.q.deliver(p, completionError(p))
	}
}

// expire discards URBs whose userspace deadline has passed; they are
// subsequently reaped with a discard status and surface as timeouts.
func (r *reaper) expire() {
	now := time.Now()
	r.mu.Lock()
	for u, p := range r.pending {
		if !p.timedOut && !p.cancelled && now.After(p.deadline) {
			p.timedOut = true
			discardURB(r.dev.fd, u)
		}
	}
	r.mu.Unlock()
}

// failAll delivers err for every pending URB. Used when the device
// disappears.
func (r *reaper) failAll(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[*urb]*pendingURB)
	r.mu.Unlock()

	for _, p := range pending {
		p.q.deliver(p, err)
	}
}

// completionError maps a reaped URB to the driver's error sentinels.
func completionError(p *pendingURB) error {
	switch {
	case p.cancelled:
		return pkg.ErrCancelled
	case p.timedOut:
		return pkg.ErrTimeout
	}
	switch status := -p.u.status; status {
	case 0:
		return nil
	case int32(unix.EPIPE):
		return pkg.ErrStall
	case int32(unix.ENODEV), int32(unix.ESHUTDOWN):
		return pkg.ErrNoDevice
	default:
		return fmt.Errorf("usbfs: transfer failed: %s", unix.Errno(status))
	}
}

// =============================================================================
// Transfer Queue
// =============================================================================

// completion is one reaped transfer awaiting delivery to WaitAny.
type completion struct {
	data   []byte
	actual int
	err    error
}

// transferQueue implements usb.TransferQueue over usbfs URBs.
type transferQueue struct {
	dev      *Device
	endpoint uint8
	depth    int

	// completions is buffered to depth, so delivery never blocks the
	// reaper: at most depth URBs can be outstanding.
	completions chan completion
	inflight    atomic.Int64

	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
}

var _ usb.TransferQueue = (*transferQueue)(nil)

// Submit implements usb.TransferQueue.
func (q *transferQueue) Submit(chunk []byte) error {
	if len(chunk) == 0 {
		return fmt.Errorf("usbfs: empty chunk: %w", pkg.ErrInvalidParameter)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return pkg.ErrCancelled
	}
	if int(q.inflight.Load()) >= q.depth {
		q.mu.Unlock()
		return fmt.Errorf("usbfs: %d transfers outstanding: %w", q.depth, pkg.ErrQueueFull)
	}

	u := &urb{
		typ:          urbTypeBulk,
		endpoint:     q.endpoint,
		buffer:       uintptr(unsafe.Pointer(&chunk[0])),
		bufferLength: int32(len(chunk)),
	}
	p := &pendingURB{
		u:        u,
		q:        q,
		data:     chunk,
		deadline: time.Now().Add(q.dev.timeout),
	}

	q.inflight.Add(1)
	q.dev.reaper.register(p)
	if err := submitURB(q.dev.fd, u); err != nil {
		q.dev.reaper.unregister(u)
		q.inflight.Add(-1)
		q.mu.Unlock()
		return fmt.Errorf("usbfs: submit urb: %w", mapErrno(err))
	}
	q.mu.Unlock()
	return nil
}

// deliver hands one reaped transfer to WaitAny. Called by the reaper.
func (q *transferQueue) deliver(p *pendingURB, err error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if !closed {
		q.completions <- completion{data: p.data, actual: int(p.u.actualLength), err: err}
	}
	q.inflight.Add(-1)
}

// WaitAny implements usb.TransferQueue.
func (q *transferQueue) WaitAny(ctx context.Context) (usb.Completion, error) {
	select {
	case c := <-q.completions:
		return usb.Completion{Data: c.data, Actual: c.actual}, c.err
	default:
	}

	if q.inflight.Load() == 0 {
		// A completion may have been delivered between the check above
		// and the load; drain once more before reporting empty.
		select {
		case c := <-q.completions:
			return usb.Completion{Data: c.data, Actual: c.actual}, c.err
		default:
			return usb.Completion{}, usb.ErrNoPending
		}
	}

	select {
	case c := <-q.completions:
		return usb.Completion{Data: c.data, Actual: c.actual}, c.err
	case <-ctx.Done():
		return usb.Completion{}, ctx.Err()
	case <-q.done:
		return usb.Completion{}, pkg.ErrCancelled
	}
}

// Pending implements usb.TransferQueue.
func (q *transferQueue) Pending() int {
	return int(q.inflight.Load())
}

// Close implements usb.TransferQueue.
func (q *transferQueue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
		q.dev.reaper.discardQueue(q)
		q.dev.removeQueue(q)
	})
	return nil
}
