package usb

import (
	"context"
	"errors"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
)

// bmRequestType bit masks, combined with bitwise OR.
const (
	DirOut = 0x00 // Host to device
	DirIn  = 0x80 // Device to host

	TypeStandard = 0x00 // Standard request
	TypeClass    = 0x20 // Class request
	TypeVendor   = 0x40 // Vendor request

	RecipDevice    = 0x00 // Device recipient
	RecipInterface = 0x01 // Interface recipient
	RecipEndpoint  = 0x02 // Endpoint recipient
)

// ErrNoPending is returned by TransferQueue.WaitAny when no submitted
// transfer remains to wait for. It marks an in-flight set as fully
// drained and is not a failure.
var ErrNoPending = errors.New("usb: no pending transfers")

// Transport sentinels, re-exported for callers that do not import pkg.
var (
	ErrStall        = pkg.ErrStall
	ErrTimeout      = pkg.ErrTimeout
	ErrCancelled    = pkg.ErrCancelled
	ErrNoDevice     = pkg.ErrNoDevice
	ErrNotSupported = pkg.ErrNotSupported
)

// Completion reports one finished asynchronous transfer. Data is the
// exact slice passed to Submit, so the caller can compare Actual
// against len(Data) to detect short transfers.
type Completion struct {
	Data   []byte // Buffer the transfer was submitted with
	Actual int    // Bytes actually transferred
}

// TransferQueue issues asynchronous bulk reads against one endpoint and
// selects completions in whatever order the device finishes them.
//
// A queue is owned by a single goroutine; implementations are not
// required to support concurrent calls.
type TransferQueue interface {
	// Submit starts an asynchronous read into chunk. The slice must
	// remain valid until the corresponding completion is returned by
	// WaitAny or the queue is closed.
	Submit(chunk []byte) error

	// WaitAny blocks until any submitted transfer completes and
	// returns it. Completion order is unspecified. If nothing is
	// outstanding it returns ErrNoPending immediately. A transfer that
	// failed is reported as an error alongside its completion data.
	WaitAny(ctx context.Context) (Completion, error)

	// Pending returns the number of submitted transfers not yet
	// returned by WaitAny.
	Pending() int

	// Close discards all outstanding transfers and releases the queue.
	Close() error
}

// Device is the transport boundary of the driver: a handle to one open
// USB device. The production implementation lives in usb/usbfs; tests
// substitute usb/usbtest.
type Device interface {
	// ControlIn performs a control transfer with an IN data phase and
	// returns the number of bytes received.
	ControlIn(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error)

	// ControlOut performs a control transfer with an OUT data phase and
	// returns the number of bytes sent.
	ControlOut(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error)

	// BulkOut performs a synchronous bulk write to the given endpoint.
	BulkOut(ctx context.Context, endpoint uint8, data []byte) (int, error)

	// ClaimInterface claims exclusive access to an interface.
	ClaimInterface(number uint8) error

	// NewTransferQueue creates an asynchronous read queue for the given
	// IN endpoint.
	NewTransferQueue(endpoint uint8) (TransferQueue, error)

	// Close releases the device handle and all of its queues.
	Close() error
}
