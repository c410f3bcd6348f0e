// Package usbfs implements the usb.Device transport on Linux using the
// kernel's usbfs character devices.
//
// Devices are discovered through sysfs and opened via /dev/bus/usb.
// Synchronous control and bulk transfers use the USBDEVFS_CONTROL and
// USBDEVFS_BULK ioctls with kernel-side timeouts. Asynchronous bulk
// reads are submitted as URBs and drained by a per-device reaper
// goroutine that multiplexes the device fd with an eventfd through
// epoll; because usbfs applies no timeout to asynchronous URBs, the
// reaper enforces userspace deadlines and discards expired requests.
package usbfs
