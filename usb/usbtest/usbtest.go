package usbtest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// ErrInjected is the cause of every fault injected through the Device
// fault fields.
var ErrInjected = errors.New("usbtest: injected fault")

// Vendor control request handled by the synthetic device.
const (
	configRequest  = 0xCF
	configValueGet = 1
	configValueSet = 0
	configSize     = 152
)

// Device is an in-memory implementation of usb.Device. It serves a
// configuration record over the vendor control requests, records bulk
// OUT writes and claimed interfaces, and generates bulk IN data through
// a configurable source.
//
// Fault fields must be set before the queue or transfer they affect is
// created; they are snapshotted by NewTransferQueue. The zero values
// produced by NewDevice inject no faults.
type Device struct {
	// Source generates bulk IN data. It fills p and returns the byte
	// count delivered. Nil means zero-filled data.
	Source func(p []byte) int

	// ShortAt, when >= 0, makes the chunk with that submission index
	// complete with half its requested length.
	ShortAt int

	// FailAt, when >= 0, makes the chunk with that submission index
	// complete with an injected transfer error.
	FailAt int

	// SubmitErrAt, when >= 0, makes the Submit call with that index
	// fail outright.
	SubmitErrAt int

	// VanishAt, when >= 0, makes the chunk with that submission index
	// never complete. WaitAny drains around it and finally reports
	// ErrNoPending, leaving the request unaccounted for.
	VanishAt int

	// ReverseCompletions delivers completions latest-first instead of
	// in submission order.
	ReverseCompletions bool

	// ConfigReadLen and ConfigWriteLen, when >= 0, override the byte
	// count reported for configuration control transfers.
	ConfigReadLen  int
	ConfigWriteLen int

	// ClaimErr and BulkOutErr, when non-nil, are returned by
	// ClaimInterface and BulkOut respectively.
	ClaimErr   error
	BulkOutErr error

	mu         sync.Mutex
	config     [configSize]byte
	bulkWrites map[uint8][][]byte
	claimed    []uint8
	queues     []*Queue
	closed     bool
}

// NewDevice creates a synthetic device with no faults configured.
func NewDevice() *Device {
	return &Device{
		ShortAt:        -1,
		FailAt:         -1,
		SubmitErrAt:    -1,
		VanishAt:       -1,
		ConfigReadLen:  -1,
		ConfigWriteLen: -1,
		bulkWrites:     make(map[uint8][][]byte),
	}
}

// SetConfigBytes loads the configuration record served by the device.
func (d *Device) SetConfigBytes(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.config[:], b)
}

// ConfigBytes returns a copy of the stored configuration record.
func (d *Device) ConfigBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, configSize)
	copy(b, d.config[:])
	return b
}

// BulkWrites returns the payloads written to the given OUT endpoint.
func (d *Device) BulkWrites(endpoint uint8) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.bulkWrites[endpoint]...)
}

// Claimed returns the interface numbers claimed so far, in order.
func (d *Device) Claimed() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint8(nil), d.claimed...)
}

// Queues returns every transfer queue created on the device, in order.
func (d *Device) Queues() []*Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Queue(nil), d.queues...)
}

// ControlIn implements usb.Device.
func (d *Device) ControlIn(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if requestType == usb.DirIn|usb.TypeVendor|usb.RecipDevice &&
		request == configRequest && value == configValueGet {
		n := copy(data, d.config[:])
		if d.ConfigReadLen >= 0 {
			n = d.ConfigReadLen
		}
		return n, nil
	}
	return 0, fmt.Errorf("usbtest: unsupported control request 0x%02x value %d", request, value)
}

// ControlOut implements usb.Device.
func (d *Device) ControlOut(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if requestType == usb.DirOut|usb.TypeVendor|usb.RecipDevice &&
		request == configRequest && value == configValueSet {
		copy(d.config[:], data)
		n := len(data)
		if d.ConfigWriteLen >= 0 {
			n = d.ConfigWriteLen
		}
		return n, nil
	}
	return 0, fmt.Errorf("usbtest: unsupported control request 0x%02x value %d", request, value)
}

// BulkOut implements usb.Device.
func (d *Device) BulkOut(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.BulkOutErr != nil {
		return 0, d.BulkOutErr
	}
	payload := append([]byte(nil), data...)
	d.bulkWrites[endpoint] = append(d.bulkWrites[endpoint], payload)
	return len(data), nil
}

// ClaimInterface implements usb.Device.
func (d *Device) ClaimInterface(number uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ClaimErr != nil {
		return d.ClaimErr
	}
	d.claimed = append(d.claimed, number)
	return nil
}

// NewTransferQueue implements usb.Device.
func (d *Device) NewTransferQueue(endpoint uint8) (usb.TransferQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, pkg.ErrNoDevice
	}

	source := d.Source
	if source == nil {
		source = func(p []byte) int { return len(p) }
	}
	q := &Queue{
		endpoint:    endpoint,
		source:      source,
		shortAt:     d.ShortAt,
		failAt:      d.FailAt,
		submitErrAt: d.SubmitErrAt,
		vanishAt:    d.VanishAt,
		reverse:     d.ReverseCompletions,
	}
	d.queues = append(d.queues, q)
	return q, nil
}

// Close implements usb.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, q := range d.queues {
		q.Close()
	}
	return nil
}

// completion is one finished synthetic transfer awaiting delivery.
type completion struct {
	data   []byte
	actual int
	err    error
}

// Queue is a synthetic transfer queue. Submitted chunks complete
// immediately; WaitAny delivers them in submission order unless the
// device was configured with ReverseCompletions.
type Queue struct {
	endpoint    uint8
	source      func(p []byte) int
	shortAt     int
	failAt      int
	submitErrAt int
	vanishAt    int
	reverse     bool

	mu       sync.Mutex
	index    int // next submission index
	ready    []completion
	vanished int
	open     int // submitted but not yet delivered, vanished included
	maxOpen  int
	closed   bool
}

// Submit implements usb.TransferQueue.
func (q *Queue) Submit(chunk []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return pkg.ErrCancelled
	}

	i := q.index
	q.index++

	if i == q.submitErrAt {
		return fmt.Errorf("usbtest: submit of chunk %d rejected: %w", i, ErrInjected)
	}

	n := q.source(chunk)
	c := completion{data: chunk, actual: n}
	switch i {
	case q.shortAt:
		c.actual = len(chunk) / 2
	case q.failAt:
		c.err = fmt.Errorf("usbtest: chunk %d failed: %w", i, ErrInjected)
	}

	q.open++
	if q.open > q.maxOpen {
		q.maxOpen = q.open
	}

	if i == q.vanishAt {
		q.vanished++
		return nil
	}
	q.ready = append(q.ready, c)
	return nil
}

// WaitAny implements usb.TransferQueue.
func (q *Queue) WaitAny(ctx context.Context) (usb.Completion, error) {
	if err := ctx.Err(); err != nil {
		return usb.Completion{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return usb.Completion{}, pkg.ErrCancelled
	}
	if len(q.ready) == 0 {
		// Everything still open has vanished; there is nothing left
		// to wait for.
		return usb.Completion{}, usb.ErrNoPending
	}

	var c completion
	if q.reverse {
		c = q.ready[len(q.ready)-1]
		q.ready = q.ready[:len(q.ready)-1]
	} else {
		c = q.ready[0]
		q.ready = q.ready[1:]
	}
	q.open--
	return usb.Completion{Data: c.data, Actual: c.actual}, c.err
}

// Pending implements usb.TransferQueue.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

// MaxPending returns the high-water mark of concurrently open
// transfers, for asserting in-flight window bounds.
func (q *Queue) MaxPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxOpen
}

// Close implements usb.TransferQueue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.ready = nil
	q.open = 0
	q.vanished = 0
	return nil
}

// CounterSource returns a source that fills buffers with consecutive
// little-endian 32-bit counter values, continuing across calls. This is
// the pattern emitted by counter-generator gateware used to validate
// lossless streaming.
func CounterSource(start uint32) func(p []byte) int {
	next := start
	return func(p []byte) int {
		for i := 0; i+4 <= len(p); i += 4 {
			binary.LittleEndian.PutUint32(p[i:], next)
			next++
		}
		return len(p)
	}
}
