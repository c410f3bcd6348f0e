package ft60x

import (
	"context"
	"errors"
	"fmt"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// fillWindowed reads the device into buf using asynchronous bulk
// requests. The buffer is divided into blockSize chunks, with one
// short final chunk if the length is not an exact multiple; up to
// window requests are kept in flight, and once the window is full each
// new submission waits for one completion first. After the last
// submission the in-flight set is drained to empty.
//
// Completions may arrive out of order, but each lands in the chunk it
// was submitted with, so buf is filled in place. Every chunk, the
// short final one included, must complete with exactly its requested
// length.
func fillWindowed(ctx context.Context, q usb.TransferQueue, buf []byte, blockSize, window int) error {
	if len(buf) == 0 {
		return fmt.Errorf("ft60x: empty buffer: %w", pkg.ErrInvalidParameter)
	}

	submitted := 0
	completed := 0

	retire := func() error {
		c, err := q.WaitAny(ctx)
		if err != nil {
			return err
		}
		if c.Actual != len(c.Data) {
			return fmt.Errorf("ft60x: bulk read returned %d of %d bytes: %w",
				c.Actual, len(c.Data), pkg.ErrShortTransfer)
		}
		completed++
		return nil
	}

	for offset := 0; offset < len(buf); offset += blockSize {
		if submitted-completed >= window {
			if err := retire(); err != nil {
				return err
			}
		}
		end := offset + blockSize
		if end > len(buf) {
			end = len(buf)
		}
		if err := q.Submit(buf[offset:end]); err != nil {
			return fmt.Errorf("ft60x: submit bulk read: %w", err)
		}
		submitted++
	}

	for {
		err := retire()
		if errors.Is(err, usb.ErrNoPending) {
			break
		}
		if err != nil {
			return err
		}
	}

	if completed != submitted {
		return fmt.Errorf("ft60x: %d of %d reads completed: %w",
			completed, submitted, pkg.ErrIncompleteDrain)
	}
	return nil
}
