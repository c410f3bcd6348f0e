package ft60x

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
	"github.com/apertus-open-source-cinema/ft60x/usb"
)

// Default identification and transfer parameters.
const (
	// DefaultVID and DefaultPID identify an FT60x in its factory
	// configuration.
	DefaultVID uint16 = 0x0403
	DefaultPID uint16 = 0x601f

	// DefaultBlockSize is the bulk read granularity. The device delivers
	// data in multiples of this size when streaming.
	DefaultBlockSize = 32 * 1024

	// DefaultWindow is the number of bulk read requests kept in flight
	// while filling a buffer.
	DefaultWindow = 500

	// DefaultRingDepth is the number of buffers circulating in a
	// streaming session.
	DefaultRingDepth = 4

	// DefaultTimeout bounds individual USB transfers.
	DefaultTimeout = time.Second
)

const (
	commandEndpoint = 0x01 // bulk OUT, streaming-mode command
	dataEndpoint    = 0x82 // bulk IN, streamed data
	configRequest   = 0xCF // vendor request, configuration record
)

// streamingModeCommand switches the device into its continuous
// streaming mode when written to the command endpoint.
var streamingModeCommand = [20]byte{
	0x00, 0x00, 0x00, 0x00, 0x82, 0x02, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Option configures a Device.
type Option func(*Device)

// WithVIDPID selects a device by vendor and product ID instead of the
// defaults.
func WithVIDPID(vid, pid uint16) Option {
	return func(d *Device) {
		d.vid = vid
		d.pid = pid
	}
}

// WithTransport substitutes the USB transport. Used for testing and for
// platforms with alternative USB stacks.
func WithTransport(t usb.Device) Option {
	return func(d *Device) { d.transport = t }
}

// WithBlockSize overrides the bulk read granularity. The size must
// match the device's FIFO configuration.
func WithBlockSize(size int) Option {
	return func(d *Device) { d.blockSize = size }
}

// WithWindow overrides the number of bulk read requests kept in flight.
func WithWindow(window int) Option {
	return func(d *Device) { d.window = window }
}

// WithRingDepth overrides the number of buffers circulating in a
// streaming session.
func WithRingDepth(depth int) Option {
	return func(d *Device) { d.ringDepth = depth }
}

// WithTimeout overrides the per-transfer timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.timeout = timeout }
}

// Device is an open FT60x.
type Device struct {
	transport usb.Device

	vid       uint16
	pid       uint16
	blockSize int
	window    int
	ringDepth int
	timeout   time.Duration

	mu        sync.Mutex
	streaming bool
}

// Open finds the device and prepares it for use. The returned Device
// holds exclusive access to the USB interfaces until Close.
func Open(opts ...Option) (*Device, error) {
	d := &Device{
		vid:       DefaultVID,
		pid:       DefaultPID,
		blockSize: DefaultBlockSize,
		window:    DefaultWindow,
		ringDepth: DefaultRingDepth,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.blockSize <= 0 {
		return nil, fmt.Errorf("ft60x: block size %d: %w", d.blockSize, pkg.ErrInvalidParameter)
	}
	if d.window <= 0 {
		return nil, fmt.Errorf("ft60x: window %d: %w", d.window, pkg.ErrInvalidParameter)
	}
	if d.ringDepth < 2 {
		return nil, fmt.Errorf("ft60x: ring depth %d, need at least 2: %w", d.ringDepth, pkg.ErrInvalidParameter)
	}

	if d.transport == nil {
		t, err := openDefaultTransport(d.vid, d.pid, d.timeout, d.window)
		if err != nil {
			return nil, err
		}
		d.transport = t
	}

	pkg.LogInfo(pkg.ComponentDevice, "device opened",
		"vid", fmt.Sprintf("%04x", d.vid), "pid", fmt.Sprintf("%04x", d.pid))
	return d, nil
}

// GetConfig reads the device's configuration record.
func (d *Device) GetConfig(ctx context.Context) (Config, error) {
	buf := make([]byte, ConfigSize)
	n, err := d.transport.ControlIn(ctx,
		usb.DirIn|usb.TypeVendor|usb.RecipDevice, configRequest, 1, 0, buf)
	if err != nil {
		return Config{}, fmt.Errorf("ft60x: read config: %w", err)
	}
	if n != ConfigSize {
		return Config{}, fmt.Errorf("ft60x: config read returned %d bytes, want %d: %w", n, ConfigSize, pkg.ErrConfigSize)
	}
	return ParseConfig(buf)
}

// SetConfig writes a configuration record to the device. The new
// configuration takes effect after the device re-enumerates.
func (d *Device) SetConfig(ctx context.Context, c Config) error {
	buf, err := c.Encode()
	if err != nil {
		return err
	}
	n, err := d.transport.ControlOut(ctx,
		usb.DirOut|usb.TypeVendor|usb.RecipDevice, configRequest, 0, 0, buf)
	if err != nil {
		return fmt.Errorf("ft60x: write config: %w", err)
	}
	if n != ConfigSize {
		return fmt.Errorf("ft60x: config write accepted %d bytes, want %d: %w", n, ConfigSize, pkg.ErrConfigSize)
	}
	pkg.LogInfo(pkg.ComponentConfig, "configuration written",
		"fifo_clock", c.FifoClock.String(), "fifo_mode", c.FifoMode.String(),
		"channels", c.ChannelConfig.String())
	return nil
}

// setStreamingMode claims the device interfaces and issues the
// streaming-mode command. Idempotent; later calls are no-ops.
func (d *Device) setStreamingMode(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		return nil
	}

	for _, iface := range []uint8{0, 1} {
		if err := d.transport.ClaimInterface(iface); err != nil {
			return fmt.Errorf("ft60x: claim interface %d: %w", iface, err)
		}
	}

	cmd := streamingModeCommand
	n, err := d.transport.BulkOut(ctx, commandEndpoint, cmd[:])
	if err != nil {
		return fmt.Errorf("ft60x: streaming mode command: %w", err)
	}
	if n != len(cmd) {
		return fmt.Errorf("ft60x: streaming mode command sent %d of %d bytes: %w", n, len(cmd), pkg.ErrShortTransfer)
	}

	d.streaming = true
	pkg.LogDebug(pkg.ComponentDevice, "streaming mode enabled")
	return nil
}

// BlockSize reports the bulk read granularity in effect.
func (d *Device) BlockSize() int { return d.blockSize }

// Close releases the device.
func (d *Device) Close() error {
	return d.transport.Close()
}
