//go:build linux

package usbfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// Defaults for Open.
const (
	// DefaultTimeout bounds each individual transfer.
	DefaultTimeout = time.Second

	// DefaultQueueDepth is the maximum number of URBs outstanding per
	// transfer queue. Together with the chunk size it must stay under
	// the kernel's per-device usbfs buffer cap (usbfs_memory_mb,
	// 16 MiB by default).
	DefaultQueueDepth = 512
)

// Device is an open usbfs device handle.
type Device struct {
	fd         int
	info       deviceInfo
	timeout    time.Duration
	queueDepth int

	mu      sync.Mutex
	reaper  *reaper
	queues  []*transferQueue
	claimed []uint8
	closed  bool
}

var _ usb.Device = (*Device)(nil)

// Option configures a Device during Open.
type Option func(*Device)

// WithTimeout sets the per-transfer timeout.
func WithTimeout(d time.Duration) Option {
	return func(dev *Device) { dev.timeout = d }
}

// WithQueueDepth sets the maximum number of URBs outstanding per
// transfer queue.
func WithQueueDepth(n int) Option {
	return func(dev *Device) { dev.queueDepth = n }
}

// Open locates the first device matching the given vendor and product
// identifiers via sysfs and opens its usbfs node.
func Open(vid, pid uint16, opts ...Option) (*Device, error) {
	info, err := findDevice(sysfsUSBPath, vid, pid)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(info.devfsPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("usbfs: open %s: %w", info.devfsPath, err)
	}

	dev := &Device{
		fd:         fd,
		info:       info,
		timeout:    DefaultTimeout,
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(dev)
	}
	if dev.timeout <= 0 || dev.queueDepth <= 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("usbfs: timeout and queue depth must be positive: %w", pkg.ErrInvalidParameter)
	}

	pkg.LogDebug(pkg.ComponentUSBFS, "device opened",
		"path", info.devfsPath, "vid", fmt.Sprintf("%04x", vid), "pid", fmt.Sprintf("%04x", pid))
	return dev, nil
}

// timeoutMillis derives the kernel-side timeout for one synchronous
// transfer from the context deadline, falling back to the device
// default.
func (d *Device) timeoutMillis(ctx context.Context) uint32 {
	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return uint32(timeout / time.Millisecond)
}

// mapErrno translates usbfs errnos into driver sentinels.
func mapErrno(err error) error {
	switch err {
	case unix.ETIMEDOUT:
		return pkg.ErrTimeout
	case unix.EPIPE:
		return pkg.ErrStall
	case unix.ENODEV, unix.ESHUTDOWN:
		return pkg.ErrNoDevice
	default:
		return err
	}
}

// ControlIn implements usb.Device.
func (d *Device) ControlIn(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := doControlTransfer(d.fd, requestType, request, value, index, data, d.timeoutMillis(ctx))
	if err != nil {
		return 0, fmt.Errorf("usbfs: control in: %w", mapErrno(err))
	}
	return n, nil
}

// ControlOut implements usb.Device.
func (d *Device) ControlOut(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := doControlTransfer(d.fd, requestType, request, value, index, data, d.timeoutMillis(ctx))
	if err != nil {
		return 0, fmt.Errorf("usbfs: control out: %w", mapErrno(err))
	}
	return n, nil
}

// BulkOut implements usb.Device.
func (d *Device) BulkOut(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := doBulkTransfer(d.fd, endpoint, data, d.timeoutMillis(ctx))
	if err != nil {
		return 0, fmt.Errorf("usbfs: bulk out 0x%02x: %w", endpoint, mapErrno(err))
	}
	return n, nil
}

// ClaimInterface implements usb.Device. A kernel driver bound to the
// interface is detached first.
func (d *Device) ClaimInterface(number uint8) error {
	err := claimInterface(d.fd, number)
	if err == unix.EBUSY {
		if derr := disconnectDriver(d.fd, number); derr == nil {
			err = claimInterface(d.fd, number)
		}
	}
	if err != nil {
		return fmt.Errorf("usbfs: claim interface %d: %w", number, mapErrno(err))
	}
	d.mu.Lock()
	d.claimed = append(d.claimed, number)
	d.mu.Unlock()
	pkg.LogDebug(pkg.ComponentUSBFS, "interface claimed", "interface", number)
	return nil
}

// NewTransferQueue implements usb.Device. The first queue starts the
// shared completion reaper.
func (d *Device) NewTransferQueue(endpoint uint8) (usb.TransferQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, pkg.ErrNoDevice
	}
	if d.reaper == nil {
		r, err := newReaper(d)
		if err != nil {
			return nil, fmt.Errorf("usbfs: start reaper: %w", err)
		}
		d.reaper = r
	}

	q := &transferQueue{
		dev:         d,
		endpoint:    endpoint,
		depth:       d.queueDepth,
		completions: make(chan completion, d.queueDepth),
		done:        make(chan struct{}),
	}
	d.queues = append(d.queues, q)
	return q, nil
}

// removeQueue forgets a closed transfer queue. Streaming sessions open
// one queue per buffer fill, so closed queues cannot accumulate on the
// handle.
func (d *Device) removeQueue(q *transferQueue) {
	d.mu.Lock()
	for i, other := range d.queues {
		if other == q {
			d.queues = append(d.queues[:i], d.queues[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Close implements usb.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queues := d.queues
	claimed := d.claimed
	r := d.reaper
	d.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
	if r != nil {
		r.stop()
	}
	for _, number := range claimed {
		releaseInterface(d.fd, number)
	}
	return unix.Close(d.fd)
}
