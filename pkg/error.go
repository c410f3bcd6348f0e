package pkg

import "errors"

// Driver errors.
var (
	// ErrDeviceNotFound indicates no attached device matched the requested
	// vendor and product identifiers.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrNoDevice indicates the device is not present (disconnected).
	ErrNoDevice = errors.New("device not present")

	// ErrShortTransfer indicates a completed transfer returned fewer bytes
	// than requested.
	ErrShortTransfer = errors.New("short transfer")

	// ErrIncompleteDrain indicates that not every submitted transfer could
	// be accounted for after draining an in-flight set.
	ErrIncompleteDrain = errors.New("incomplete drain")

	// ErrConfigSize indicates a configuration control transfer moved a byte
	// count other than the fixed record size.
	ErrConfigSize = errors.New("configuration size mismatch")

	// ErrNotSupported indicates an unsupported operation or platform.
	ErrNotSupported = errors.New("not supported")

	// ErrQueueFull indicates a transfer queue has reached its submission
	// depth limit.
	ErrQueueFull = errors.New("transfer queue full")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)
