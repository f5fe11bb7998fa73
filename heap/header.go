package heap

import "fmt"
import "time"
import "weak"
import "sync/atomic"

import "github.com/bnclabs/gengc/api"

// Allocpath tells how an object's memory was obtained.
type Allocpath int32

const (
	// PathTLAB carved from mutator's thread local buffer.
	PathTLAB Allocpath = iota
	// PathDirect allocated directly in the young generation.
	PathDirect
	// PathLarge allocated in the large object class.
	PathLarge
)

func (path Allocpath) String() string {
	switch path {
	case PathTLAB:
		return "tlab"
	case PathDirect:
		return "direct"
	case PathLarge:
		return "large"
	}
	return fmt.Sprintf("path<%d>", int32(path))
}

// ObjectHeader wraps a single heap object. Generation and mark are
// mutated only by the collector.
type ObjectHeader struct {
	markepoch  uint64 // atomic, marked if equal to collector's epoch
	generation int32  // atomic

	id      api.ObjectID
	size    int64
	path    Allocpath
	payload interface{}
	raw     []byte
	born    time.Time
}

// ID of the object.
func (hdr *ObjectHeader) ID() api.ObjectID {
	return hdr.id
}

// Generation the object currently belongs to.
func (hdr *ObjectHeader) Generation() api.GenerationID {
	return api.GenerationID(atomic.LoadInt32(&hdr.generation))
}

func (hdr *ObjectHeader) setgeneration(gen api.GenerationID) {
	if old := hdr.Generation(); gen <= old {
		fmsg := "%v generation can't move from %v to %v"
		panic(fmt.Errorf(fmsg, hdr.id, old, gen))
	}
	atomic.StoreInt32(&hdr.generation, int32(gen))
}

// Size is the approximate size of the object in bytes.
func (hdr *ObjectHeader) Size() int64 {
	return hdr.size
}

// Path by which the object was allocated.
func (hdr *ObjectHeader) Path() Allocpath {
	return hdr.path
}

// Payload is the value held by the object.
func (hdr *ObjectHeader) Payload() interface{} {
	return hdr.payload
}

// Bytes is the raw memory region reserved for the object.
func (hdr *ObjectHeader) Bytes() []byte {
	return hdr.raw
}

// Age of the object since allocation.
func (hdr *ObjectHeader) Age() time.Duration {
	return time.Since(hdr.born)
}

// mark object for epoch, return false if already marked.
func (hdr *ObjectHeader) mark(epoch uint64) bool {
	if atomic.LoadUint64(&hdr.markepoch) == epoch {
		return false
	}
	atomic.StoreUint64(&hdr.markepoch, epoch)
	return true
}

func (hdr *ObjectHeader) ismarked(epoch uint64) bool {
	return atomic.LoadUint64(&hdr.markepoch) == epoch
}

func (hdr *ObjectHeader) String() string {
	return fmt.Sprintf("%v{%v %v bytes via %v}",
		hdr.id, hdr.Generation(), hdr.size, hdr.path)
}

// GcPtr is a strong handle to a heap object. GcPtr values can be
// freely copied, all copies refer to the same object. Holding a GcPtr
// doesn't keep the object registered, only roots and reachability
// from roots do, but the header stays valid memory and weak pointers
// to it keep upgrading for as long as any GcPtr is held.
type GcPtr struct {
	hdr *ObjectHeader
}

// NilPtr points to nothing.
var NilPtr = GcPtr{}

// Isnil return true for a zero GcPtr.
func (p GcPtr) Isnil() bool {
	return p.hdr == nil
}

// ID of the object pointed to, api.NilObject for nil pointer.
func (p GcPtr) ID() api.ObjectID {
	if p.hdr == nil {
		return api.NilObject
	}
	return p.hdr.id
}

// Header return the object's header.
func (p GcPtr) Header() *ObjectHeader {
	return p.hdr
}

// Value return the payload.
func (p GcPtr) Value() interface{} {
	if p.hdr == nil {
		return nil
	}
	return p.hdr.payload
}

// Generation of the object pointed to.
func (p GcPtr) Generation() api.GenerationID {
	return p.hdr.Generation()
}

// Size of the object pointed to.
func (p GcPtr) Size() int64 {
	return p.hdr.size
}

// Equal return true if both pointers refer to the same object.
func (p GcPtr) Equal(q GcPtr) bool {
	return p.hdr == q.hdr
}

func (p GcPtr) String() string {
	if p.hdr == nil {
		return "gcptr<nil>"
	}
	return "gcptr<" + p.hdr.String() + ">"
}

// WeakGcPtr refers to an object without keeping it alive.
type WeakGcPtr struct {
	store *Store
	id    api.ObjectID
	hdr   weak.Pointer[ObjectHeader]
}

// ID the weak pointer refers to.
func (w WeakGcPtr) ID() api.ObjectID {
	return w.id
}

// Upgrade return a strong pointer if the object is still registered,
// or if it was reclaimed while some GcPtr still holds it.
func (w WeakGcPtr) Upgrade() (GcPtr, bool) {
	if w.store == nil || w.id.Isnil() {
		return NilPtr, false
	}
	if hdr := w.store.Lookup(w.id); hdr != nil {
		return GcPtr{hdr: hdr}, true
	}
	if hdr := w.hdr.Value(); hdr != nil {
		return GcPtr{hdr: hdr}, true
	}
	return NilPtr, false
}

// Release this weak reference. Weak references that are never
// released are forgotten when their object is reclaimed.
func (w WeakGcPtr) Release() {
	if w.store != nil {
		w.store.releaseweak(w.id)
	}
}

func (w WeakGcPtr) String() string {
	return "weak<" + w.id.String() + ">"
}
