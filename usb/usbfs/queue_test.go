//go:build linux

package usbfs

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// newIdleDevice builds a device handle with a reaper that has no running
// loop and no pending URBs, enough to exercise queue bookkeeping without
// a real usbfs node.
func newIdleDevice(t *testing.T) *Device {
	t.Helper()
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { unix.Close(efd) })

	d := &Device{fd: -1, timeout: time.Second, queueDepth: 4}
	d.reaper = &reaper{
		dev:      d,
		eventfd:  efd,
		pending:  make(map[*urb]*pendingURB),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	return d
}

// Streaming sessions open one queue per buffer fill, so a closed queue
// left on the handle would grow without bound over a long stream.
func TestQueueCloseReleasesHandleSlot(t *testing.T) {
	d := newIdleDevice(t)

	for i := 0; i < 1000; i++ {
		q, err := d.NewTransferQueue(0x82)
		if err != nil {
			t.Fatalf("NewTransferQueue() error = %v", err)
		}
		if err := q.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	d.mu.Lock()
	remaining := len(d.queues)
	d.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d closed queues still tracked on the device, want 0", remaining)
	}
}

func TestQueueCloseIdempotent(t *testing.T) {
	d := newIdleDevice(t)

	q, err := d.NewTransferQueue(0x82)
	if err != nil {
		t.Fatalf("NewTransferQueue() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := q.Close(); err != nil {
			t.Errorf("Close() call %d error = %v", i, err)
		}
	}

	d.mu.Lock()
	remaining := len(d.queues)
	d.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d queues still tracked after repeated Close, want 0", remaining)
	}
}
