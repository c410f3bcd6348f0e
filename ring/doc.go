// Package ring provides a bounded single-producer/single-consumer
// channel of reusable slots, built for handing large byte buffers
// between a hardware-reading goroutine and a consuming goroutine
// without copying.
//
// A channel of capacity N owns N slots. The producer and consumer each
// hold a monotonically increasing position counter; the producer may
// write slot writePos%N only while writePos-readPos < N, and the
// consumer may read slot readPos%N only while readPos < writePos.
// Progress is communicated through two position feeds (one per
// direction), so neither side ever inspects the other's internal state.
//
// Slots are reachable only through the callback passed to
// [Producer.Produce] or [Consumer.Consume]. The callback receives an
// exclusive reference for its duration, which makes the disjointness of
// the producer's write window and the consumer's read window structural
// rather than conventional.
//
// Closing either endpoint cancels the channel: any blocked call on the
// opposite side returns [ErrCancelled] instead of deadlocking, and both
// endpoints cancel automatically when closed, so abandoning one side
// never strands the other.
//
// The position feeds trade one message per element against the absence
// of shared mutable counters. Elements are expected to be large (tens
// of kilobytes and up), so the per-message overhead is negligible
// relative to the transfer time of an element.
package ring
