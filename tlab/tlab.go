package tlab

import "fmt"
import "time"
import "sync/atomic"

// Tlab is a bump pointer buffer owned by a single mutator.
type Tlab struct {
	// 64-bit aligned, accessed atomically.
	current   int64
	n_objects int64
	n_bytes   int64
	active    int32

	id     uint64
	owner  uint64
	buffer []byte
	size   int64
	born   time.Time
}

func newtlab(id, owner uint64, size int64) *Tlab {
	return &Tlab{
		active: 1,
		id:     id,
		owner:  owner,
		buffer: make([]byte, size),
		size:   size,
		born:   time.Now(),
	}
}

// TryAllocate carve size bytes at an offset that is a multiple of
// align. Return the offset and true on success, false if the buffer is
// retired or can't fit the request. Align shall be a power of 2.
func (tl *Tlab) TryAllocate(size, align int64) (int64, bool) {
	if align <= 0 || (align&(align-1)) != 0 {
		panicerr("tlab alignment %v is not a power of 2", align)
	} else if size <= 0 {
		return 0, false
	}

	mask := align - 1
	for {
		if atomic.LoadInt32(&tl.active) == 0 {
			return 0, false
		}
		current := atomic.LoadInt64(&tl.current)
		offset := (current + mask) &^ mask
		if offset+size > tl.size {
			return 0, false
		}
		if atomic.CompareAndSwapInt64(&tl.current, current, offset+size) {
			atomic.AddInt64(&tl.n_objects, 1)
			atomic.AddInt64(&tl.n_bytes, size)
			return offset, true
		}
	}
}

// Fits return true if an aligned allocation of size bytes would
// succeed right now.
func (tl *Tlab) Fits(size, align int64) bool {
	if atomic.LoadInt32(&tl.active) == 0 {
		return false
	}
	mask := align - 1
	offset := (atomic.LoadInt64(&tl.current) + mask) &^ mask
	return offset+size <= tl.size
}

// Bytes return the region [offset, offset+size) of the buffer. Capacity
// of returned slice is clipped so that appends don't spill into
// neighbouring allocations.
func (tl *Tlab) Bytes(offset, size int64) []byte {
	return tl.buffer[offset : offset+size : offset+size]
}

// Retire mark this buffer as inactive, further allocations fail.
// Return true if this call retired the buffer.
func (tl *Tlab) Retire() bool {
	return atomic.CompareAndSwapInt32(&tl.active, 1, 0)
}

// Isactive return false once the buffer is retired.
func (tl *Tlab) Isactive() bool {
	return atomic.LoadInt32(&tl.active) == 1
}

// ID of this buffer, unique within its Manager.
func (tl *Tlab) ID() uint64 {
	return tl.id
}

// Owner return the mutator id this buffer belongs to.
func (tl *Tlab) Owner() uint64 {
	return tl.owner
}

// Size of buffer in bytes.
func (tl *Tlab) Size() int64 {
	return tl.size
}

// Remaining bytes past the bump pointer.
func (tl *Tlab) Remaining() int64 {
	if rem := tl.size - atomic.LoadInt64(&tl.current); rem > 0 {
		return rem
	}
	return 0
}

// Used return bytes handed out, excluding alignment padding.
func (tl *Tlab) Used() int64 {
	return atomic.LoadInt64(&tl.n_bytes)
}

// Objects return number of allocations served.
func (tl *Tlab) Objects() int64 {
	return atomic.LoadInt64(&tl.n_objects)
}

// Utilization return used bytes as percentage of buffer size.
func (tl *Tlab) Utilization() float64 {
	if tl.size == 0 {
		return 0
	}
	return (float64(tl.Used()) / float64(tl.size)) * 100
}

// Age of the buffer since creation.
func (tl *Tlab) Age() time.Duration {
	return time.Since(tl.born)
}

func (tl *Tlab) String() string {
	return fmt.Sprintf(
		"tlab<%v owner:%v size:%v used:%v objects:%v active:%v>",
		tl.id, tl.owner, tl.size, tl.Used(), tl.Objects(), tl.Isactive())
}
