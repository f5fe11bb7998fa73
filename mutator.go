package gengc

import "fmt"
import "runtime"
import "sync/atomic"

import "github.com/bnclabs/gengc/api"
import "github.com/bnclabs/gengc/heap"

// Mutator is an allocating client of the heap. A mutator owns at most
// one active TLAB and shall not be shared between goroutines.
type Mutator struct {
	active int32
	id     uint64
	coord  *Coordinator
}

// ID of mutator, unique within its Coordinator.
func (m *Mutator) ID() uint64 {
	return m.id
}

// Allocate a new object holding value, size is the approximate size of
// the object in bytes. The returned pointer does not keep the object
// alive, root it or make it reachable from a root.
func (m *Mutator) Allocate(value interface{}, size int64) (heap.GcPtr, error) {
	return m.coord.allocate(m, value, size, false)
}

// AllocateRoot allocate a new object and add it to the root set, no
// collection can reclaim it in between.
func (m *Mutator) AllocateRoot(value interface{}, size int64) (heap.GcPtr, error) {
	return m.coord.allocate(m, value, size, true)
}

// RetireTLAB retire mutator's current TLAB.
func (m *Mutator) RetireTLAB() bool {
	return m.coord.RetireTLAB(m)
}

// Isactive return false once unregistered.
func (m *Mutator) Isactive() bool {
	return atomic.LoadInt32(&m.active) == 1
}

// Unregister mutator and retire its TLAB. Further allocations fail
// with api.ErrorUnregistered.
func (m *Mutator) Unregister() error {
	if !atomic.CompareAndSwapInt32(&m.active, 1, 0) {
		return api.ErrorUnregistered
	}
	runtime.SetFinalizer(m, nil)
	m.coord.tlabs.Retire(m.id)
	atomic.AddInt64(&m.coord.n_mutators, -1)
	debugf("%v unregistered mutator %v\n", m.coord.logprefix, m.id)
	return nil
}

// mutator dropped without unregistering. Only retire the TLAB here, the
// manager forgets it on next Cleanup().
func (m *Mutator) finalize() {
	if !atomic.CompareAndSwapInt32(&m.active, 1, 0) {
		return
	}
	if tl := m.coord.tlabs.Lookup(m.id); tl != nil {
		tl.Retire()
	}
	atomic.AddInt64(&m.coord.n_mutators, -1)
}

func (m *Mutator) String() string {
	return fmt.Sprintf("mutator<%v active:%v>", m.id, m.Isactive())
}
