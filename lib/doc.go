// Package lib provide small statistical helpers used by the allocator
// and the collector. Types in this package are not thread safe,
// callers are expected to guard them with their own locks.
package lib
