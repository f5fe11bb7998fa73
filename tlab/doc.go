// Package tlab supplies thread local allocation buffers for mutators.
//
// A Tlab is a fixed size byte buffer carved up with a bump pointer,
// only the owning mutator allocates from it, hence allocations don't
// synchronize with other mutators. Counters and the bump pointer are
// atomic so that statistics and cleanup can read them from other
// goroutines without a lock.
//
// Manager owns one Tlab per mutator, creates a new buffer when the
// current one can't fit a request, and sizes new buffers from the
// utilization of buffers retired so far:
//
//   size      : default buffer size in bytes.
//   maxsize   : buffers are never larger than this.
//   adaptive  : size new buffers from retired buffers' utilization.
//   capacity  : upper bound on bytes held by live buffers, together.
//
// Buffers are never handed back piecemeal, once retired, a buffer
// stays alive for as long as objects carved out of it are reachable
// from the Go heap.
package tlab
