// Package ft60x drives the FTDI FT60x family of USB 3.0 FIFO bridges
// from the host side.
//
// The package covers the chip's vendor configuration protocol (the
// 152-byte configuration record read and written over control
// transfers) and its high-throughput streaming mode, where bulk IN data
// is read with a deep window of overlapping asynchronous requests.
//
// Two streaming sessions are offered. ReadStream owns a fixed ring of
// buffers and lends each filled buffer to the caller for the duration
// of a callback. StreamBuffers inverts the ownership: the caller
// submits empty buffers and receives them back filled, in order, on a
// channel.
//
// The USB transport is pluggable through the usb.Device interface; on
// Linux the usb/usbfs package provides it over the kernel's usbfs
// nodes, and usb/usbtest provides an in-memory double for tests.
package ft60x
