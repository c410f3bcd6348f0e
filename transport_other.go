//go:build !linux

package ft60x

import (
	"fmt"
	"time"

	"github.com/apertus-open-source-cinema/ft60x/usb"
)

func openDefaultTransport(vid, pid uint16, timeout time.Duration, window int) (usb.Device, error) {
	return nil, fmt.Errorf("ft60x: no USB transport for this platform: %w", usb.ErrNotSupported)
}
