package capture

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

func TestWriterPassthrough(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	payload := []byte("streamed block data")
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !bytes.Equal(out.Bytes(), payload) {
		t.Error("passthrough output does not match input")
	}
	if got := w.BytesWritten(); got != int64(len(payload)) {
		t.Errorf("BytesWritten() = %d, want %d", got, len(payload))
	}
	if w.Digest() != nil {
		t.Error("Digest() non-nil without WithDigest")
	}
}

func TestWriterZstdRoundTrip(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(&out, WithZstd(3))
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	for i := 0; i < len(payload); i += 1024 {
		if _, err := w.Write(payload[i : i+1024]); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if out.Len() >= len(payload) {
		t.Errorf("compressed %d bytes into %d, expected reduction", len(payload), out.Len())
	}

	dec, err := zstd.NewReader(&out)
	if err != nil {
		t.Fatalf("zstd.NewReader() error = %v", err)
	}
	defer dec.Close()
	decoded, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("decompressed output does not match input")
	}
}

func TestWriterDigest(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 10000)

	var out bytes.Buffer
	w, err := NewWriter(&out, WithZstd(1), WithDigest())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The digest covers the raw data, not the compressed form.
	want := blake2b.Sum256(payload)
	if !bytes.Equal(w.Digest(), want[:]) {
		t.Errorf("Digest() = %x, want %x", w.Digest(), want)
	}
}

func TestWriterClosed(t *testing.T) {
	w, err := NewWriter(io.Discard)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() second call error = %v", err)
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("Write() after Close succeeded")
	}
}
