//go:build linux

package usbfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
)

// System paths.
const (
	// sysfsUSBPath is the base path for USB devices in sysfs.
	sysfsUSBPath = "/sys/bus/usb/devices"

	// devfsUSBPath is the base path for USB device nodes.
	devfsUSBPath = "/dev/bus/usb"
)

// =============================================================================
// Device Discovery
// =============================================================================

// deviceInfo holds information about a USB device discovered via sysfs.
type deviceInfo struct {
	sysfsPath string // Path in /sys/bus/usb/devices
	devfsPath string // Path in /dev/bus/usb
	busNum    uint8  // Bus number
	devNum    uint8  // Device number
	vendorID  uint16 // USB Vendor ID
	productID uint16 // USB Product ID
}

// scanDevices scans a sysfs devices directory for USB devices.
func scanDevices(root string) ([]deviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var devices []deviceInfo
	for _, entry := range entries {
		name := entry.Name()

		// USB devices have names like "1-1", "1-1.2", etc. Skip root
		// hub entries (usb1, usb2, ...) and interface entries (1-1:1.0).
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		info, err := parseDevice(filepath.Join(root, name))
		if err != nil {
			continue // Skip devices we can't parse
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// parseDevice parses USB device information from one sysfs device
// directory.
func parseDevice(sysfsPath string) (deviceInfo, error) {
	info := deviceInfo{sysfsPath: sysfsPath}

	busNum, err := readSysfsUint8(filepath.Join(sysfsPath, "busnum"))
	if err != nil {
		return info, err
	}
	info.busNum = busNum

	devNum, err := readSysfsUint8(filepath.Join(sysfsPath, "devnum"))
	if err != nil {
		return info, err
	}
	info.devNum = devNum

	vendorID, err := readSysfsHexUint16(filepath.Join(sysfsPath, "idVendor"))
	if err != nil {
		return info, err
	}
	info.vendorID = vendorID

	productID, err := readSysfsHexUint16(filepath.Join(sysfsPath, "idProduct"))
	if err != nil {
		return info, err
	}
	info.productID = productID

	info.devfsPath = formatDevfsPath(info.busNum, info.devNum)
	return info, nil
}

// findDevice locates the first device matching the given vendor and
// product identifiers.
func findDevice(root string, vid, pid uint16) (deviceInfo, error) {
	devices, err := scanDevices(root)
	if err != nil {
		return deviceInfo{}, err
	}
	for _, info := range devices {
		if info.vendorID == vid && info.productID == pid {
			return info, nil
		}
	}
	return deviceInfo{}, fmt.Errorf("usbfs: no device with VID %04x PID %04x: %w", vid, pid, pkg.ErrDeviceNotFound)
}

// formatDevfsPath constructs the /dev/bus/usb node path for a device.
func formatDevfsPath(bus, dev uint8) string {
	return fmt.Sprintf("%s/%03d/%03d", devfsUSBPath, bus, dev)
}

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

// readSysfsString reads a string from a sysfs attribute file.
func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsUint8 reads an unsigned decimal uint8 from a sysfs
// attribute file.
func readSysfsUint8(path string) (uint8, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// readSysfsHexUint16 reads a hexadecimal uint16 from a sysfs attribute
// file.
func readSysfsHexUint16(path string) (uint16, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
