// Package usb defines the transport boundary of the ft60x driver: an
// open device handle capable of control transfers, synchronous bulk
// writes, and asynchronous bulk-read queues with completion selection.
//
// Two implementations exist: usbfs (Linux, backed by the kernel's
// usbfs character devices) and usbtest (an in-memory synthetic device
// for tests and bring-up).
package usb
