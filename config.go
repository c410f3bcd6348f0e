package ft60x

import (
	"encoding/binary"
	"fmt"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
)

// ConfigSize is the fixed length of the configuration record exchanged
// over the vendor control requests, in both directions.
const ConfigSize = 152

// configStringArea is the portion of the record holding the three
// descriptor strings.
const configStringArea = 128

// FifoClock selects the FIFO bus clock frequency.
type FifoClock uint8

// FIFO clock frequencies.
const (
	Clock100MHz FifoClock = iota
	Clock66MHz
	Clock50MHz
	Clock40MHz
)

// String returns a human-readable clock name.
func (c FifoClock) String() string {
	switch c {
	case Clock100MHz:
		return "100MHz"
	case Clock66MHz:
		return "66MHz"
	case Clock50MHz:
		return "50MHz"
	case Clock40MHz:
		return "40MHz"
	default:
		return fmt.Sprintf("FifoClock(%d)", uint8(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c FifoClock) MarshalText() ([]byte, error) {
	if c > Clock40MHz {
		return nil, fmt.Errorf("ft60x: unknown fifo clock %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *FifoClock) UnmarshalText(text []byte) error {
	for v := Clock100MHz; v <= Clock40MHz; v++ {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("ft60x: unknown fifo clock %q", text)
}

func parseFifoClock(v uint8) (FifoClock, error) {
	if v > uint8(Clock40MHz) {
		return 0, fmt.Errorf("ft60x: unknown fifo clock configuration %d", v)
	}
	return FifoClock(v), nil
}

// FifoMode selects the FIFO bus protocol.
type FifoMode uint8

// FIFO bus protocols.
const (
	Mode245 FifoMode = iota // FT245 synchronous FIFO
	Mode600                 // FT600 multi-channel FIFO
)

// String returns a human-readable mode name.
func (m FifoMode) String() string {
	switch m {
	case Mode245:
		return "245"
	case Mode600:
		return "600"
	default:
		return fmt.Sprintf("FifoMode(%d)", uint8(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m FifoMode) MarshalText() ([]byte, error) {
	if m > Mode600 {
		return nil, fmt.Errorf("ft60x: unknown fifo mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FifoMode) UnmarshalText(text []byte) error {
	for v := Mode245; v <= Mode600; v++ {
		if v.String() == string(text) {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("ft60x: unknown fifo mode %q", text)
}

func parseFifoMode(v uint8) (FifoMode, error) {
	if v > uint8(Mode600) {
		return 0, fmt.Errorf("ft60x: unknown fifo mode configuration %d", v)
	}
	return FifoMode(v), nil
}

// ChannelConfig selects how the FIFO bus is split into channels.
type ChannelConfig uint8

// Channel configurations.
const (
	FourChannels ChannelConfig = iota
	TwoChannels
	OneChannel
	OneChannelOutPipe
	OneChannelInPipe
)

// String returns a human-readable channel configuration name.
func (c ChannelConfig) String() string {
	switch c {
	case FourChannels:
		return "four channels"
	case TwoChannels:
		return "two channels"
	case OneChannel:
		return "one channel"
	case OneChannelOutPipe:
		return "one channel, out pipe only"
	case OneChannelInPipe:
		return "one channel, in pipe only"
	default:
		return fmt.Sprintf("ChannelConfig(%d)", uint8(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ChannelConfig) MarshalText() ([]byte, error) {
	if c > OneChannelInPipe {
		return nil, fmt.Errorf("ft60x: unknown channel config %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ChannelConfig) UnmarshalText(text []byte) error {
	for v := FourChannels; v <= OneChannelInPipe; v++ {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("ft60x: unknown channel config %q", text)
}

func parseChannelConfig(v uint8) (ChannelConfig, error) {
	if v > uint8(OneChannelInPipe) {
		return 0, fmt.Errorf("ft60x: unknown channel configuration %d", v)
	}
	return ChannelConfig(v), nil
}

// FlashROMDetection reports the state of the configuration memory
// probe, decoded from a one-byte flag set.
type FlashROMDetection struct {
	MemoryIsROM           bool // ROM rather than flash
	MemoryMissing         bool // No configuration memory found
	CustomConfigInvalid   bool // Custom configuration failed validation
	CustomChecksumInvalid bool // Custom configuration checksum mismatch
	CustomConfigUsed      bool // Custom rather than default configuration active
	GPIOInputUsed         bool // GPIO input pins consulted during detection
	GPIO0High             bool // Sampled level of GPIO0
	GPIO1High             bool // Sampled level of GPIO1
}

func parseFlashROMDetection(flags uint8) FlashROMDetection {
	return FlashROMDetection{
		MemoryIsROM:           flags&(1<<0) != 0,
		MemoryMissing:         flags&(1<<1) != 0,
		CustomConfigInvalid:   flags&(1<<2) != 0,
		CustomChecksumInvalid: flags&(1<<3) != 0,
		CustomConfigUsed:      flags&(1<<4) != 0,
		GPIOInputUsed:         flags&(1<<5) != 0,
		GPIO0High:             flags&(1<<6) != 0,
		GPIO1High:             flags&(1<<7) != 0,
	}
}

func (f FlashROMDetection) encode() uint8 {
	var flags uint8
	set := func(bit int, v bool) {
		if v {
			flags |= 1 << bit
		}
	}
	set(0, f.MemoryIsROM)
	set(1, f.MemoryMissing)
	set(2, f.CustomConfigInvalid)
	set(3, f.CustomChecksumInvalid)
	set(4, f.CustomConfigUsed)
	set(5, f.GPIOInputUsed)
	set(6, f.GPIO0High)
	set(7, f.GPIO1High)
	return flags
}

// Config is the device configuration record.
//
// The three descriptor strings share a 128-byte area in the encoded
// record; each occupies 2+2*len bytes, so their combined length is
// limited accordingly. Characters must be ASCII.
type Config struct {
	VID                       uint16
	PID                       uint16
	Manufacturer              string
	ProductDescription        string
	SerialNumber              string
	PowerAttributes           uint8
	PowerConsumption          uint16 // in 2 mA units
	FifoClock                 FifoClock
	FifoMode                  FifoMode
	ChannelConfig             ChannelConfig
	OptionalFeatures          uint16
	BatteryChargingGPIOConfig uint8
	FlashROMDetection         FlashROMDetection
	MSIOConfig                uint32
	GPIOConfig                uint32

	// Reserved bytes are preserved across parse/encode round trips but
	// carry no known meaning.
	reserved1 uint8
	reserved2 uint8
}

// ParseConfig decodes a configuration record. The input must be exactly
// ConfigSize bytes.
func ParseConfig(data []byte) (Config, error) {
	if len(data) != ConfigSize {
		return Config{}, fmt.Errorf("ft60x: config record is %d bytes, want %d: %w", len(data), ConfigSize, pkg.ErrConfigSize)
	}

	var c Config
	c.VID = binary.LittleEndian.Uint16(data[0:2])
	c.PID = binary.LittleEndian.Uint16(data[2:4])

	area := data[4 : 4+configStringArea]
	offset := 0
	for i, dst := range []*string{&c.Manufacturer, &c.ProductDescription, &c.SerialNumber} {
		s, n, err := parseConfigString(area[offset:])
		if err != nil {
			return Config{}, fmt.Errorf("ft60x: config string %d: %w", i, err)
		}
		*dst = s
		offset += n
	}

	rest := data[4+configStringArea:]
	c.reserved1 = rest[0]
	c.PowerAttributes = rest[1]
	c.PowerConsumption = binary.LittleEndian.Uint16(rest[2:4])
	c.reserved2 = rest[4]

	var err error
	if c.FifoClock, err = parseFifoClock(rest[5]); err != nil {
		return Config{}, err
	}
	if c.FifoMode, err = parseFifoMode(rest[6]); err != nil {
		return Config{}, err
	}
	if c.ChannelConfig, err = parseChannelConfig(rest[7]); err != nil {
		return Config{}, err
	}

	c.OptionalFeatures = binary.LittleEndian.Uint16(rest[8:10])
	c.BatteryChargingGPIOConfig = rest[10]
	c.FlashROMDetection = parseFlashROMDetection(rest[11])
	c.MSIOConfig = binary.LittleEndian.Uint32(rest[12:16])
	c.GPIOConfig = binary.LittleEndian.Uint32(rest[16:20])

	return c, nil
}

// parseConfigString decodes one descriptor string: a total-length byte,
// a 0x03 type tag, then ASCII characters each followed by a zero pad.
// Returns the string and the number of bytes consumed.
func parseConfigString(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, fmt.Errorf("truncated descriptor")
	}
	total := int(b[0])
	if total < 2 || total%2 != 0 || total > len(b) {
		return "", 0, fmt.Errorf("invalid descriptor length %d", total)
	}
	if b[1] != 0x03 {
		return "", 0, fmt.Errorf("invalid descriptor tag 0x%02x", b[1])
	}

	chars := make([]byte, 0, (total-2)/2)
	for i := 2; i < total; i += 2 {
		if b[i] > 0x7f {
			return "", 0, fmt.Errorf("non-ASCII character 0x%02x", b[i])
		}
		if b[i+1] != 0 {
			return "", 0, fmt.Errorf("nonzero pad byte 0x%02x", b[i+1])
		}
		chars = append(chars, b[i])
	}
	return string(chars), total, nil
}

// Encode produces the wire form of the record, always ConfigSize bytes.
func (c Config) Encode() ([]byte, error) {
	need := 0
	for i, s := range []string{c.Manufacturer, c.ProductDescription, c.SerialNumber} {
		for j := 0; j < len(s); j++ {
			if s[j] > 0x7f {
				return nil, fmt.Errorf("ft60x: config string %d contains non-ASCII character 0x%02x", i, s[j])
			}
		}
		need += 2 + 2*len(s)
	}
	if need > configStringArea {
		return nil, fmt.Errorf("ft60x: config strings need %d bytes, string area holds %d", need, configStringArea)
	}

	buf := make([]byte, ConfigSize)
	binary.LittleEndian.PutUint16(buf[0:2], c.VID)
	binary.LittleEndian.PutUint16(buf[2:4], c.PID)

	offset := 4
	for _, s := range []string{c.Manufacturer, c.ProductDescription, c.SerialNumber} {
		buf[offset] = uint8(2 + 2*len(s))
		buf[offset+1] = 0x03
		for j := 0; j < len(s); j++ {
			buf[offset+2+2*j] = s[j]
		}
		offset += 2 + 2*len(s)
	}

	rest := buf[4+configStringArea:]
	rest[0] = c.reserved1
	rest[1] = c.PowerAttributes
	binary.LittleEndian.PutUint16(rest[2:4], c.PowerConsumption)
	rest[4] = c.reserved2
	rest[5] = uint8(c.FifoClock)
	rest[6] = uint8(c.FifoMode)
	rest[7] = uint8(c.ChannelConfig)
	binary.LittleEndian.PutUint16(rest[8:10], c.OptionalFeatures)
	rest[10] = c.BatteryChargingGPIOConfig
	rest[11] = c.FlashROMDetection.encode()
	binary.LittleEndian.PutUint32(rest[12:16], c.MSIOConfig)
	binary.LittleEndian.PutUint32(rest[16:20], c.GPIOConfig)

	return buf, nil
}
