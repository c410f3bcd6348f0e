//go:build linux && amd64

package usbfs

import (
	"testing"
	"unsafe"
)

// Known-good usbfs ioctl numbers for amd64, cross-checked against the
// kernel's usbdevice_fs.h.
func TestIoctlNumbersAMD64(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"USBDEVFS_CONTROL", usbdevfsControl, 0xc0185500},
		{"USBDEVFS_BULK", usbdevfsBulk, 0xc0185502},
		{"USBDEVFS_SUBMITURB", usbdevfsSubmitURB, 0x8038550a},
		{"USBDEVFS_DISCARDURB", usbdevfsDiscardURB, 0x0000550b},
		{"USBDEVFS_REAPURBNDELAY", usbdevfsReapURBNDelay, 0x4008550d},
		{"USBDEVFS_CLAIMINTERFACE", usbdevfsClaimInterface, 0x8004550f},
		{"USBDEVFS_RELEASEINTERFACE", usbdevfsReleaseInterface, 0x80045510},
		{"USBDEVFS_IOCTL", usbdevfsIoctl, 0xc0105512},
		{"USBDEVFS_DISCONNECT", usbdevfsDisconnect, 0x00005516},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestURBLayoutAMD64(t *testing.T) {
	// struct usbdevfs_urb is 56 bytes on amd64.
	if size := int(unsafe.Sizeof(urb{})); size != 56 {
		t.Errorf("sizeof(urb) = %d, want 56", size)
	}
}
