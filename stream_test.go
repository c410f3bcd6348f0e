package ft60x

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb/usbtest"
)

// checkCounter verifies that buf continues the little-endian u32
// sequence at *next and advances it.
func checkCounter(t *testing.T, buf []byte, next *uint32) {
	t.Helper()
	for i := 0; i+4 <= len(buf); i += 4 {
		got := binary.LittleEndian.Uint32(buf[i:])
		if got != *next {
			t.Fatalf("counter at offset %d = %d, want %d", i, got, *next)
		}
		*next++
	}
}

func TestReadStreamContinuity(t *testing.T) {
	const blockSize = 512
	const bufferBytes = 8 * blockSize

	transport := usbtest.NewDevice()
	transport.Source = usbtest.CounterSource(0)
	d := openTestDevice(t, transport, WithBlockSize(blockSize), WithWindow(8))

	s, err := d.ReadStream(bufferBytes)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	defer s.Close()

	// Sixteen buffers span several trips around the ring; the counter
	// must be gapless across buffer boundaries.
	var next uint32
	for i := 0; i < 16; i++ {
		err := s.Next(func(buf []byte) {
			if len(buf) != bufferBytes {
				t.Fatalf("buffer length = %d, want %d", len(buf), bufferBytes)
			}
			checkCounter(t, buf, &next)
		})
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
	}
}

func TestReadStreamTenMiBLossless(t *testing.T) {
	// 10 MiB of counter data through the full stack at the production
	// block size: no gaps, duplicates or reordering across buffers.
	const bufferBytes = 1 << 20
	const total = 10 << 20

	transport := usbtest.NewDevice()
	transport.Source = usbtest.CounterSource(0)
	d := openTestDevice(t, transport)

	s, err := d.ReadStream(bufferBytes)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	defer s.Close()

	var next uint32
	for read := 0; read < total; read += bufferBytes {
		err := s.Next(func(buf []byte) { checkCounter(t, buf, &next) })
		if err != nil {
			t.Fatalf("Next() error = %v after %d bytes", err, read)
		}
	}
	if want := uint32(total / 4); next != want {
		t.Errorf("verified %d words, want %d", next, want)
	}
}

func TestReadStreamValidatesBufferSize(t *testing.T) {
	transport := usbtest.NewDevice()
	d := openTestDevice(t, transport, WithBlockSize(1024))

	for _, size := range []int{0, -1024, 1000, 1025} {
		if _, err := d.ReadStream(size); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("ReadStream(%d) error = %v, want ErrInvalidParameter", size, err)
		}
	}
}

func TestReadStreamClose(t *testing.T) {
	transport := usbtest.NewDevice()
	transport.Source = usbtest.CounterSource(0)
	d := openTestDevice(t, transport, WithBlockSize(256), WithWindow(4))

	s, err := d.ReadStream(4 * 256)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if err := s.Next(func([]byte) {}); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Next(func([]byte) {}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Next() after Close error = %v, want ErrStreamClosed", err)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() after clean Close = %v, want nil", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() second call error = %v", err)
	}
}

func TestReadStreamFatalError(t *testing.T) {
	transport := usbtest.NewDevice()
	transport.FailAt = 2
	d := openTestDevice(t, transport, WithBlockSize(256), WithWindow(4))

	s, err := d.ReadStream(4 * 256)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	defer s.Close()

	deadline := time.After(5 * time.Second)
	for {
		err := s.Next(func([]byte) {})
		if err != nil {
			if !errors.Is(err, usbtest.ErrInjected) {
				t.Fatalf("Next() error = %v, want ErrInjected", err)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("stream never surfaced the injected error")
		default:
		}
	}
	if err := s.Err(); !errors.Is(err, usbtest.ErrInjected) {
		t.Errorf("Err() = %v, want ErrInjected", err)
	}
}
