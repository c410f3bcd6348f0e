//go:build linux

package usbfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apertus-open-source-cinema/ft60x/pkg"
)

// writeDevice populates a fake sysfs device directory.
func writeDevice(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for attr, value := range attrs {
		if err := os.WriteFile(filepath.Join(dir, attr), []byte(value+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanDevices(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "1-2", map[string]string{
		"busnum":    "1",
		"devnum":    "5",
		"idVendor":  "0403",
		"idProduct": "601f",
	})
	writeDevice(t, root, "1-3", map[string]string{
		"busnum":    "1",
		"devnum":    "6",
		"idVendor":  "04b4",
		"idProduct": "0001",
	})
	// Entries that must be skipped: root hubs, interfaces, and devices
	// with unreadable attributes.
	writeDevice(t, root, "usb1", map[string]string{"busnum": "1"})
	writeDevice(t, root, "1-2:1.0", map[string]string{"bInterfaceNumber": "00"})
	writeDevice(t, root, "1-4", map[string]string{"busnum": "1"})

	devices, err := scanDevices(root)
	if err != nil {
		t.Fatalf("scanDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("scanDevices() found %d devices, want 2", len(devices))
	}
}

func TestFindDevice(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "3-1", map[string]string{
		"busnum":    "3",
		"devnum":    "11",
		"idVendor":  "0403",
		"idProduct": "601f",
	})

	info, err := findDevice(root, 0x0403, 0x601f)
	if err != nil {
		t.Fatalf("findDevice() error = %v", err)
	}
	if info.busNum != 3 || info.devNum != 11 {
		t.Errorf("findDevice() = bus %d dev %d, want bus 3 dev 11", info.busNum, info.devNum)
	}
	if want := "/dev/bus/usb/003/011"; info.devfsPath != want {
		t.Errorf("devfsPath = %q, want %q", info.devfsPath, want)
	}

	_, err = findDevice(root, 0xdead, 0xbeef)
	if !errors.Is(err, pkg.ErrDeviceNotFound) {
		t.Errorf("findDevice() error = %v, want ErrDeviceNotFound", err)
	}
}
