// Package usbid resolves USB vendor and product identifiers to
// human-readable names using the system's usb.ids database.
package usbid
