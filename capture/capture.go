package capture

import (
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
)

// Option configures a Writer.
type Option func(*Writer) error

// WithZstd compresses the capture with zstd at the given level (1-22,
// matching the reference zstd scale).
func WithZstd(level int) Option {
	return func(w *Writer) error {
		enc, err := zstd.NewWriter(w.out,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return fmt.Errorf("capture: zstd encoder: %w", err)
		}
		w.encoder = enc
		return nil
	}
}

// WithDigest computes a BLAKE2b-256 digest over the raw captured data,
// before compression.
func WithDigest() Option {
	return func(w *Writer) error {
		h, err := blake2b.New256(nil)
		if err != nil {
			return fmt.Errorf("capture: blake2b: %w", err)
		}
		w.digest = h
		return nil
	}
}

// Writer sinks a capture to an io.Writer, optionally compressing it and
// digesting the raw data on the way through.
type Writer struct {
	out     io.Writer
	encoder *zstd.Encoder
	digest  hash.Hash

	written int64
	closed  bool
	sum     []byte
}

// NewWriter wraps w as a capture sink.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	cw := &Writer{out: w}
	for _, opt := range opts {
		if err := opt(cw); err != nil {
			return nil, err
		}
	}
	return cw, nil
}

// Write implements io.Writer over the raw capture data.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("capture: write after close")
	}
	if w.digest != nil {
		w.digest.Write(p)
	}

	dst := w.out
	if w.encoder != nil {
		dst = w.encoder
	}
	n, err := dst.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("capture: write: %w", err)
	}
	return n, nil
}

// Close flushes the compressor and finalizes the digest. The underlying
// writer is not closed. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.digest != nil {
		w.sum = w.digest.Sum(nil)
	}
	if w.encoder != nil {
		if err := w.encoder.Close(); err != nil {
			return fmt.Errorf("capture: close encoder: %w", err)
		}
	}
	pkg.LogDebug(pkg.ComponentCapture, "capture closed", "bytes", w.written)
	return nil
}

// BytesWritten reports the raw (pre-compression) byte count accepted so
// far.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Digest returns the BLAKE2b-256 digest of the raw capture. It is valid
// after Close and nil unless WithDigest was given.
func (w *Writer) Digest() []byte {
	return w.sum
}
