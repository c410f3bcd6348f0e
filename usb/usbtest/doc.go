// Package usbtest provides an in-memory implementation of usb.Device
// for tests and bring-up: a configurable bulk IN data source, recording
// of control and bulk OUT traffic, deterministic fault injection, and a
// high-water mark of concurrently open transfers for asserting window
// bounds.
package usbtest
