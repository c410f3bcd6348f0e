package usbid

import (
	"os"
	"path/filepath"
	"testing"
)

const testDatabase = `#
#	List of USB ID's
#
0403  Future Technology Devices International, Ltd
	6001  FT232 Serial (UART) IC
	601f  FT600 16-bit FIFO IC
04b4  Cypress Semiconductor Corp.

C 00  (Defined at Interface level)
	00  No Subclass
`

func writeTestDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usb.ids")
	if err := os.WriteFile(path, []byte(testDatabase), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissing(t *testing.T) {
	db := NewWithPaths([]string{filepath.Join(t.TempDir(), "nonexistent")})
	if db.Load() {
		t.Error("Load() = true for missing database, want false")
	}
}

func TestLookup(t *testing.T) {
	db := NewWithPaths([]string{writeTestDatabase(t)})
	if !db.Load() {
		t.Fatal("Load() = false, want true")
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"vendor", db.Vendor(0x0403), "Future Technology Devices International, Ltd"},
		{"product", db.Product(0x0403, 0x601f), "FT600 16-bit FIFO IC"},
		{"vendor without products", db.Vendor(0x04b4), "Cypress Semiconductor Corp."},
		{"unknown vendor", db.Vendor(0xffff), ""},
		{"unknown product", db.Product(0x0403, 0xffff), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	db := NewWithPaths([]string{writeTestDatabase(t)})
	db.Load()

	tests := []struct {
		vid, pid uint16
		want     string
	}{
		{0x0403, 0x601f, "Future Technology Devices International, Ltd FT600 16-bit FIFO IC"},
		{0x0403, 0xbeef, "Future Technology Devices International, Ltd beef"},
		{0xdead, 0xbeef, "dead:beef"},
	}

	for _, tt := range tests {
		if got := db.Describe(tt.vid, tt.pid); got != tt.want {
			t.Errorf("Describe(%04x, %04x) = %q, want %q", tt.vid, tt.pid, got, tt.want)
		}
	}
}
