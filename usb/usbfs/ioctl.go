//go:build linux

package usbfs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// =============================================================================
// usbfs Kernel Structures
// =============================================================================

// urb must match the kernel's struct usbdevfs_urb layout.
type urb struct {
	typ          uint8   // URB type (control, bulk, interrupt, iso)
	endpoint     uint8   // Endpoint address
	status       int32   // URB status after completion (negative errno)
	flags        uint32  // URB flags
	buffer       uintptr // Pointer to data buffer
	bufferLength int32   // Length of data buffer
	actualLength int32   // Actual bytes transferred
	startFrame   int32   // Start frame for ISO transfers
	streamID     uint32  // Stream ID for USB 3.0 bulk streams
	errorCount   int32   // Error count for ISO transfers
	signr        uint32  // Signal number for async notification
	userContext  uintptr // User context pointer
}

// URB type values.
const (
	urbTypeISO       = 0
	urbTypeInterrupt = 1
	urbTypeControl   = 2
	urbTypeBulk      = 3
)

// ctrlTransfer must match the kernel's struct usbdevfs_ctrltransfer.
type ctrlTransfer struct {
	requestType uint8   // bmRequestType
	request     uint8   // bRequest
	value       uint16  // wValue
	index       uint16  // wIndex
	length      uint16  // wLength
	timeout     uint32  // Timeout in milliseconds
	data        uintptr // Data buffer pointer
}

// bulkTransfer must match the kernel's struct usbdevfs_bulktransfer.
type bulkTransfer struct {
	endpoint uint32  // Endpoint address
	length   uint32  // Data length
	timeout  uint32  // Timeout in milliseconds
	data     uintptr // Data buffer pointer
}

// driverIoctl must match the kernel's struct usbdevfs_ioctl, the
// carrier for per-interface sub-ioctls like disconnect.
type driverIoctl struct {
	ifno      int32   // Interface number
	ioctlCode int32   // Sub-ioctl request number
	data      uintptr // Sub-ioctl argument
}

// =============================================================================
// ioctl Number Encoding
// =============================================================================

// The ioctl number encoding uses the following bit layout:
//
//	bits 0-7:   command number (nr)
//	bits 8-15:  ioctl type (type)
//	bits 16-29: argument size (size)
//	bits 30-31: direction (dir)
//
// Argument sizes are taken from the Go struct definitions above, whose
// field layout (and therefore padding) matches the kernel's on every
// GOARCH, so the resulting numbers are portable.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }
func ioNoData(typ, nr uintptr) uintptr   { return ioc(iocNone, typ, nr, 0) }

// usbdevfs ioctl type character.
const usbdevfsType = 'U'

// usbdevfs ioctl request numbers.
var (
	usbdevfsControl          = iowr(usbdevfsType, 0, unsafe.Sizeof(ctrlTransfer{}))
	usbdevfsBulk             = iowr(usbdevfsType, 2, unsafe.Sizeof(bulkTransfer{}))
	usbdevfsSubmitURB        = ior(usbdevfsType, 10, unsafe.Sizeof(urb{}))
	usbdevfsDiscardURB       = ioNoData(usbdevfsType, 11)
	usbdevfsReapURBNDelay    = iow(usbdevfsType, 13, unsafe.Sizeof(uintptr(0)))
	usbdevfsClaimInterface   = ior(usbdevfsType, 15, unsafe.Sizeof(uint32(0)))
	usbdevfsReleaseInterface = ior(usbdevfsType, 16, unsafe.Sizeof(uint32(0)))
	usbdevfsIoctl            = iowr(usbdevfsType, 18, unsafe.Sizeof(driverIoctl{}))
	usbdevfsDisconnect       = ioNoData(usbdevfsType, 22)
)

// =============================================================================
// Raw ioctl Wrappers
// =============================================================================

// ioctlRaw performs an ioctl and discards the result value.
func ioctlRaw(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ioctlRetval performs an ioctl and returns its result value.
func ioctlRetval(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

// =============================================================================
// usbfs Operations
// =============================================================================

// doControlTransfer performs a synchronous control transfer. The kernel
// enforces the timeout (milliseconds).
func doControlTransfer(fd int, requestType, request uint8, value, index uint16, data []byte, timeout uint32) (int, error) {
	ctrl := ctrlTransfer{
		requestType: requestType,
		request:     request,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     timeout,
	}
	if len(data) > 0 {
		ctrl.data = uintptr(unsafe.Pointer(&data[0]))
	}
	return ioctlRetval(fd, usbdevfsControl, unsafe.Pointer(&ctrl))
}

// doBulkTransfer performs a synchronous bulk transfer. The kernel
// enforces the timeout (milliseconds).
func doBulkTransfer(fd int, endpoint uint8, data []byte, timeout uint32) (int, error) {
	bulk := bulkTransfer{
		endpoint: uint32(endpoint),
		length:   uint32(len(data)),
		timeout:  timeout,
	}
	if len(data) > 0 {
		bulk.data = uintptr(unsafe.Pointer(&data[0]))
	}
	return ioctlRetval(fd, usbdevfsBulk, unsafe.Pointer(&bulk))
}

// claimInterface claims exclusive access to an interface.
func claimInterface(fd int, number uint8) error {
	n := uint32(number)
	return ioctlRaw(fd, usbdevfsClaimInterface, unsafe.Pointer(&n))
}

// releaseInterface releases a previously claimed interface.
func releaseInterface(fd int, number uint8) error {
	n := uint32(number)
	return ioctlRaw(fd, usbdevfsReleaseInterface, unsafe.Pointer(&n))
}

// disconnectDriver detaches the kernel driver from an interface. The
// disconnect request is a sub-ioctl delivered through USBDEVFS_IOCTL.
func disconnectDriver(fd int, number uint8) error {
	cmd := driverIoctl{
		ifno:      int32(number),
		ioctlCode: int32(usbdevfsDisconnect),
	}
	return ioctlRaw(fd, usbdevfsIoctl, unsafe.Pointer(&cmd))
}

// submitURB submits a URB for asynchronous processing.
func submitURB(fd int, u *urb) error {
	return ioctlRaw(fd, usbdevfsSubmitURB, unsafe.Pointer(u))
}

// reapURBNDelay retrieves a completed URB without blocking. Returns
// unix.EAGAIN when none is ready.
func reapURBNDelay(fd int) (*urb, error) {
	var u *urb
	if err := ioctlRaw(fd, usbdevfsReapURBNDelay, unsafe.Pointer(&u)); err != nil {
		return nil, err
	}
	return u, nil
}

// discardURB cancels a pending URB. The kernel still delivers it
// through reaping, with an ENOENT status.
func discardURB(fd int, u *urb) error {
	return ioctlRaw(fd, usbdevfsDiscardURB, unsafe.Pointer(u))
}
