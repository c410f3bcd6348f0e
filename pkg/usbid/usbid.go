package usbid

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database caches vendor and product names from the USB ID database.
type Database struct {
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|PID -> product name
	loaded   bool
	mu       sync.Mutex
	paths    []string
}

// New creates a USB ID database that searches the default paths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths creates a USB ID database that searches the given paths.
func NewWithPaths(paths []string) *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first USB ID database file found. It is idempotent;
// subsequent calls do nothing. Returns false if no database file could
// be read.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return true
	}

	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db.parse(f)
		f.Close()
		db.loaded = true
		return true
	}
	return false
}

// parse reads the usb.ids format: vendor lines start in column zero with
// a four-digit hex VID, product lines are indented by one tab. Class
// sections and everything after them are ignored.
func (db *Database) parse(f *os.File) {
	var vendor uint16
	haveVendor := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "\t\t") {
			continue // interface-level entries
		}

		if strings.HasPrefix(line, "\t") {
			if !haveVendor {
				continue
			}
			id, name, ok := splitIDLine(strings.TrimPrefix(line, "\t"))
			if ok {
				db.products[uint32(vendor)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := splitIDLine(line)
		if !ok {
			// First non-vendor section ("C 00" etc.) ends the device list.
			haveVendor = false
			continue
		}
		vendor = id
		haveVendor = true
		db.vendors[id] = name
	}
}

// splitIDLine splits "0403  Future Technology Devices" into ID and name.
func splitIDLine(line string) (uint16, string, bool) {
	if len(line) < 6 {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[4:]), true
}

// Vendor returns the vendor name for the given VID, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.vendors[vid]
}

// Product returns the product name for the given VID/PID pair, or "" if
// unknown.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe returns a human-readable description of the VID/PID pair,
// falling back to hexadecimal identifiers for unknown devices.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.Vendor(vid)
	product := db.Product(vid, pid)
	switch {
	case vendor != "" && product != "":
		return fmt.Sprintf("%s %s", vendor, product)
	case vendor != "":
		return fmt.Sprintf("%s %04x", vendor, pid)
	default:
		return fmt.Sprintf("%04x:%04x", vid, pid)
	}
}
