package usbtest

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/apertus-open-source-cinema/ft60x/usb"
)

func TestConfigRoundTrip(t *testing.T) {
	d := NewDevice()
	record := make([]byte, configSize)
	for i := range record {
		record[i] = byte(i)
	}

	n, err := d.ControlOut(context.Background(), usb.DirOut|usb.TypeVendor|usb.RecipDevice,
		configRequest, configValueSet, 0, record)
	if err != nil {
		t.Fatalf("ControlOut() error = %v", err)
	}
	if n != configSize {
		t.Fatalf("ControlOut() = %d bytes, want %d", n, configSize)
	}

	readback := make([]byte, configSize)
	n, err = d.ControlIn(context.Background(), usb.DirIn|usb.TypeVendor|usb.RecipDevice,
		configRequest, configValueGet, 0, readback)
	if err != nil {
		t.Fatalf("ControlIn() error = %v", err)
	}
	if n != configSize {
		t.Fatalf("ControlIn() = %d bytes, want %d", n, configSize)
	}
	for i := range record {
		if readback[i] != record[i] {
			t.Fatalf("readback[%d] = %d, want %d", i, readback[i], record[i])
		}
	}
}

func TestUnsupportedControlRequest(t *testing.T) {
	d := NewDevice()
	if _, err := d.ControlIn(context.Background(), usb.DirIn|usb.TypeStandard|usb.RecipDevice,
		0x06, 0x0100, 0, make([]byte, 18)); err == nil {
		t.Error("ControlIn() with standard request succeeded, want error")
	}
}

func TestQueueDeliversInOrder(t *testing.T) {
	d := NewDevice()
	d.Source = CounterSource(0)

	tq, err := d.NewTransferQueue(0x82)
	if err != nil {
		t.Fatal(err)
	}

	chunks := make([][]byte, 4)
	for i := range chunks {
		chunks[i] = make([]byte, 64)
		if err := tq.Submit(chunks[i]); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	want := uint32(0)
	for i := 0; i < len(chunks); i++ {
		c, err := tq.WaitAny(context.Background())
		if err != nil {
			t.Fatalf("WaitAny() error = %v", err)
		}
		if c.Actual != len(c.Data) {
			t.Fatalf("completion %d: actual = %d, want %d", i, c.Actual, len(c.Data))
		}
		for off := 0; off+4 <= len(c.Data); off += 4 {
			if got := binary.LittleEndian.Uint32(c.Data[off:]); got != want {
				t.Fatalf("counter value = %d, want %d", got, want)
			}
			want++
		}
	}

	if _, err := tq.WaitAny(context.Background()); !errors.Is(err, usb.ErrNoPending) {
		t.Errorf("WaitAny() on drained queue error = %v, want ErrNoPending", err)
	}
}

func TestQueueFaults(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		d := NewDevice()
		d.ShortAt = 1
		tq, _ := d.NewTransferQueue(0x82)
		for i := 0; i < 2; i++ {
			if err := tq.Submit(make([]byte, 32)); err != nil {
				t.Fatal(err)
			}
		}
		c, err := tq.WaitAny(context.Background())
		if err != nil || c.Actual != 32 {
			t.Fatalf("first completion = (%d, %v), want (32, nil)", c.Actual, err)
		}
		c, err = tq.WaitAny(context.Background())
		if err != nil {
			t.Fatalf("second completion error = %v", err)
		}
		if c.Actual != 16 {
			t.Errorf("short completion actual = %d, want 16", c.Actual)
		}
	})

	t.Run("submit error", func(t *testing.T) {
		d := NewDevice()
		d.SubmitErrAt = 0
		tq, _ := d.NewTransferQueue(0x82)
		if err := tq.Submit(make([]byte, 32)); !errors.Is(err, ErrInjected) {
			t.Errorf("Submit() error = %v, want ErrInjected", err)
		}
	})

	t.Run("vanish", func(t *testing.T) {
		d := NewDevice()
		d.VanishAt = 0
		tq, _ := d.NewTransferQueue(0x82)
		if err := tq.Submit(make([]byte, 32)); err != nil {
			t.Fatal(err)
		}
		if _, err := tq.WaitAny(context.Background()); !errors.Is(err, usb.ErrNoPending) {
			t.Errorf("WaitAny() error = %v, want ErrNoPending", err)
		}
		if got := tq.Pending(); got != 1 {
			t.Errorf("Pending() = %d, want 1 (the vanished request)", got)
		}
	})

	t.Run("fail", func(t *testing.T) {
		d := NewDevice()
		d.FailAt = 0
		tq, _ := d.NewTransferQueue(0x82)
		if err := tq.Submit(make([]byte, 32)); err != nil {
			t.Fatal(err)
		}
		if _, err := tq.WaitAny(context.Background()); !errors.Is(err, ErrInjected) {
			t.Errorf("WaitAny() error = %v, want ErrInjected", err)
		}
	})
}

func TestReverseCompletions(t *testing.T) {
	d := NewDevice()
	d.ReverseCompletions = true

	tq, _ := d.NewTransferQueue(0x82)
	first := make([]byte, 8)
	second := make([]byte, 8)
	tq.Submit(first)
	tq.Submit(second)

	c, err := tq.WaitAny(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if &c.Data[0] != &second[0] {
		t.Error("reverse delivery returned the first chunk, want the second")
	}
}

func TestMaxPending(t *testing.T) {
	d := NewDevice()
	q, _ := d.NewTransferQueue(0x82)
	tq := q.(*Queue)

	for i := 0; i < 3; i++ {
		tq.Submit(make([]byte, 8))
	}
	tq.WaitAny(context.Background())
	tq.Submit(make([]byte, 8))

	if got := tq.MaxPending(); got != 3 {
		t.Errorf("MaxPending() = %d, want 3", got)
	}
}
