// Package api define types and interfaces shared by the allocator,
// the collector and the host runtime that embeds them.
package api

import "fmt"

// ObjectID identifies a heap object. Lower 32 bits carry the 1-based
// slot in the object arena, upper 32 bits carry the slot's stamp. A
// slot's stamp is bumped every time the slot is reclaimed, hence an
// ObjectID never resolves to an object other than the one it was
// issued for.
type ObjectID uint64

// NilObject is never issued.
const NilObject = ObjectID(0)

// MakeObjectID compose an ObjectID from slot index and stamp.
func MakeObjectID(slot uint32, stamp uint32) ObjectID {
	return ObjectID((uint64(stamp) << 32) | uint64(slot+1))
}

// Slot return the 0-based arena slot.
func (id ObjectID) Slot() uint32 {
	return uint32(id&0xFFFFFFFF) - 1
}

// Stamp return the slot's stamp at the time id was issued.
func (id ObjectID) Stamp() uint32 {
	return uint32(id >> 32)
}

// Isnil return true for NilObject.
func (id ObjectID) Isnil() bool {
	return id == NilObject
}

func (id ObjectID) String() string {
	if id.Isnil() {
		return "obj<nil>"
	}
	return fmt.Sprintf("obj<%v.%v>", id.Slot(), id.Stamp())
}

// Traceable is implemented by payloads that hold references to other
// heap objects. Collector calls References() while tracing the object
// graph, implementations shall not allocate or collect from within
// the callback. Payloads that don't implement Traceable are leaf
// objects.
type Traceable interface {
	References() []ObjectID
}

// Referencesof return outgoing edges for payload, nil if payload is
// not Traceable.
func Referencesof(payload interface{}) []ObjectID {
	if t, ok := payload.(Traceable); ok && t != nil {
		return t.References()
	}
	return nil
}
