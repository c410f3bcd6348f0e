// Package capture sinks streamed device data to disk, with optional
// zstd compression and BLAKE2b-256 integrity digests over the raw
// stream.
package capture
