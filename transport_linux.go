//go:build linux

package ft60x

import (
	"time"

	"github.com/apertus-open-source-cinema/ft60x/usb"
	"github.com/apertus-open-source-cinema/ft60x/usb/usbfs"
)

// openDefaultTransport opens the device through usbfs. The queue depth
// matches the read window so a full window can stay in flight.
func openDefaultTransport(vid, pid uint16, timeout time.Duration, window int) (usb.Device, error) {
	return usbfs.Open(vid, pid, usbfs.WithTimeout(timeout), usbfs.WithQueueDepth(window))
}
