package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsDistinct(t *testing.T) {
	sentinels := []error{
		ErrDeviceNotFound,
		ErrStall,
		ErrTimeout,
		ErrCancelled,
		ErrNoDevice,
		ErrShortTransfer,
		ErrIncompleteDrain,
		ErrConfigSize,
		ErrNotSupported,
		ErrQueueFull,
		ErrInvalidParameter,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = true, want false", a, b)
			}
		}
	}
}

func TestSentinelErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("chunk 3 returned 16384 of 32768 bytes: %w", ErrShortTransfer)
	if !errors.Is(wrapped, ErrShortTransfer) {
		t.Errorf("errors.Is(wrapped, ErrShortTransfer) = false, want true")
	}
	if errors.Is(wrapped, ErrIncompleteDrain) {
		t.Errorf("errors.Is(wrapped, ErrIncompleteDrain) = true, want false")
	}
}
