package gengc

import "fmt"
import "sync"
import "runtime"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"
import "github.com/bnclabs/gengc/api"
import "github.com/bnclabs/gengc/heap"
import "github.com/bnclabs/gengc/sampler"
import "github.com/bnclabs/gengc/tlab"

// Coordinator routes allocations from mutators to TLABs, the young
// generation or the large object class, and triggers collections
// when generations outgrow their thresholds.
type Coordinator struct {
	// 64-bit aligned stats
	n_allocs     int64
	n_allocbytes int64
	n_failed     int64
	n_tlab       int64
	n_direct     int64
	n_large      int64
	n_tlabfails  int64 // TLAB path failed, served directly
	n_forcedgc   int64
	n_autogc     int64
	n_mutators   int64
	reserved     int64 // bytes admitted but not yet in the store
	nextmutator  uint64
	n_gens       [api.NumGenerations]int64
	closed       int32

	name      string
	store     *heap.Store
	collector *heap.Collector
	tlabs     *tlab.Manager
	sampler   *sampler.Sampler
	finch     chan struct{}
	wg        sync.WaitGroup
	logprefix string

	// settings
	setts          s.Settings
	thresholds     [api.MaxGenerations]int64 // young, gen1, gen2
	capacity       int64
	largethreshold int64
	housekeeptick  int64
	logstats       bool
}

// New create a new garbage collected heap, refer to Defaultsettings()
// for configurable parameters.
func New(name string, setts s.Settings) *Coordinator {
	c := &Coordinator{
		name:      name,
		finch:     make(chan struct{}),
		logprefix: fmt.Sprintf("GENGC [%s]", name),
	}
	c.setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	c.readsettings(c.setts)

	c.store = heap.NewStore(name)
	c.collector = heap.NewCollector(name, c.store, c.setts)
	c.tlabs = tlab.NewManager(name, c.setts.Section("tlab.").Trim("tlab."))
	c.sampler = sampler.NewSampler(
		name, c.setts.Section("sampler.").Trim("sampler."))

	if c.housekeeptick > 0 {
		c.wg.Add(1)
		go housekeeper(c, c.housekeeptick, c.finch)
	}
	c.logsettings()
	return c
}

func (c *Coordinator) readsettings(setts s.Settings) {
	c.thresholds[api.Young] = setts.Int64("nursery.threshold")
	c.thresholds[1] = setts.Int64("gen1.threshold")
	c.thresholds[2] = setts.Int64("gen2.threshold")
	c.capacity = setts.Int64("heap.capacity")
	c.largethreshold = setts.Int64("largeobject.threshold")
	c.housekeeptick = setts.Int64("housekeep.tick")
	c.logstats = setts.Bool("log.stats")

	for gen, threshold := range c.thresholds {
		if threshold <= 0 {
			fmsg := "%v invalid threshold %v for %v"
			panic(fmt.Errorf(fmsg, c.logprefix, threshold, api.GenerationID(gen)))
		}
	}
	if c.largethreshold <= 0 {
		fmsg := "%v invalid largeobject.threshold %v"
		panic(fmt.Errorf(fmsg, c.logprefix, c.largethreshold))
	} else if c.capacity <= 0 {
		fmsg := "%v invalid heap.capacity %v"
		panic(fmt.Errorf(fmsg, c.logprefix, c.capacity))
	}
}

func (c *Coordinator) logsettings() {
	thresholds := []interface{}{}
	for _, threshold := range c.thresholds {
		thresholds = append(thresholds, humanize.Bytes(uint64(threshold)))
	}
	fmsg := "%v thresholds young:%v gen1:%v gen2:%v\n"
	infof(fmsg, c.logprefix, thresholds[0], thresholds[1], thresholds[2])
	capacity := humanize.Bytes(uint64(c.capacity))
	large := humanize.Bytes(uint64(c.largethreshold))
	infof("%v heap capacity %v large objects from %v\n", c.logprefix, capacity, large)
}

// Register a new mutator. Each allocating goroutine shall use its own
// mutator. A mutator that is dropped without unregistering retires its
// TLAB when it is garbage collected by Go, and its book-keeping is
// removed by the next Cleanup().
func (c *Coordinator) Register() (*Mutator, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, api.ErrorClosed
	}
	m := &Mutator{id: atomic.AddUint64(&c.nextmutator, 1), coord: c, active: 1}
	atomic.AddInt64(&c.n_mutators, 1)
	runtime.SetFinalizer(m, (*Mutator).finalize)
	debugf("%v registered mutator %v\n", c.logprefix, m.id)
	return m, nil
}

//---- allocation

func (c *Coordinator) allocate(
	m *Mutator, value interface{}, size int64, root bool) (heap.GcPtr, error) {

	if atomic.LoadInt32(&c.closed) == 1 {
		return heap.NilPtr, api.ErrorClosed
	} else if atomic.LoadInt32(&m.active) == 0 {
		return heap.NilPtr, api.ErrorUnregistered
	} else if size <= 0 {
		atomic.AddInt64(&c.n_failed, 1)
		return heap.NilPtr, fmt.Errorf("allocate %v bytes: %w", size, api.ErrorInvalidSize)
	}

	var ptr heap.GcPtr
	var ok bool

	gen := api.Young
	if size >= c.largethreshold {
		gen = api.LargeObject
	}
	if err := c.reserve(size, gen); err != nil {
		atomic.AddInt64(&c.n_failed, 1)
		return heap.NilPtr, err
	}
	if gen == api.LargeObject {
		ptr = c.allocatedirect(value, size, api.LargeObject, root)
	} else if ptr, ok = c.allocatetlab(m, value, size, root); !ok {
		ptr = c.allocatedirect(value, size, api.Young, root)
	}
	atomic.AddInt64(&c.reserved, -size)

	atomic.AddInt64(&c.n_allocs, 1)
	atomic.AddInt64(&c.n_allocbytes, size)
	atomic.AddInt64(&c.n_gens[gen], 1)
	c.sampler.MaybeSample(size, gen, m.id, 2)
	c.maybecollect()
	return ptr, nil
}

func (c *Coordinator) allocatetlab(
	m *Mutator, value interface{}, size int64, root bool) (heap.GcPtr, bool) {

	tl, err := c.tlabs.Get(m.id, size)
	if err != nil {
		atomic.AddInt64(&c.n_tlabfails, 1)
		debugf("%v mutator %v tlab: %v\n", c.logprefix, m.id, err)
		return heap.NilPtr, false
	}
	offset, ok := tl.TryAllocate(size, api.Alignment)
	if !ok {
		atomic.AddInt64(&c.n_tlabfails, 1)
		return heap.NilPtr, false
	}
	raw := tl.Bytes(offset, size)
	ptr := c.newobject(value, size, api.Young, heap.PathTLAB, raw, root)
	atomic.AddInt64(&c.n_tlab, 1)
	return ptr, true
}

// reserve size bytes of heap.capacity for an allocation on any path.
// A full heap forces one full collection before failing with
// api.ErrorOutofMemory. Reservations are released once the object is
// accounted in the store.
func (c *Coordinator) reserve(size int64, gen api.GenerationID) error {
	if c.admit(size) {
		return nil
	}
	atomic.AddInt64(&c.n_forcedgc, 1)
	fmsg := "%v heap full allocating %v, forcing full collection\n"
	debugf(fmsg, c.logprefix, humanize.Bytes(uint64(size)))
	c.collector.CollectAll()
	if c.admit(size) {
		return nil
	}
	fmsg = "%v allocating %v bytes in %v: %w"
	return fmt.Errorf(fmsg, c.logprefix, size, gen, api.ErrorOutofMemory)
}

func (c *Coordinator) admit(size int64) bool {
	reserved := atomic.AddInt64(&c.reserved, size)
	if c.store.Totalbytes()+reserved <= c.capacity {
		return true
	}
	atomic.AddInt64(&c.reserved, -size)
	return false
}

func (c *Coordinator) allocatedirect(
	value interface{}, size int64, gen api.GenerationID,
	root bool) heap.GcPtr {

	path := heap.PathDirect
	if gen == api.LargeObject {
		path = heap.PathLarge
	}
	ptr := c.newobject(value, size, gen, path, make([]byte, size), root)
	if gen == api.LargeObject {
		atomic.AddInt64(&c.n_large, 1)
	} else {
		atomic.AddInt64(&c.n_direct, 1)
	}
	return ptr
}

func (c *Coordinator) newobject(
	value interface{}, size int64, gen api.GenerationID,
	path heap.Allocpath, raw []byte, root bool) heap.GcPtr {

	if root {
		return c.store.AllocateRoot(value, size, gen, path, raw)
	}
	return c.store.Allocate(value, size, gen, path, raw)
}

// collect the youngest generation that has outgrown its threshold.
func (c *Coordinator) maybecollect() {
	for i, threshold := range c.thresholds {
		gen := api.GenerationID(i)
		if c.store.Livebytes(gen) <= threshold {
			continue
		}
		if c.collector.CollectIfAbove(gen, threshold) {
			atomic.AddInt64(&c.n_autogc, 1)
		}
		return
	}
}

//---- roots and weak references

// AddRoot add object to the root set.
func (c *Coordinator) AddRoot(ptr heap.GcPtr) {
	c.store.AddRoot(ptr.ID())
}

// RemoveRoot remove object from the root set. Return false if object
// was not rooted.
func (c *Coordinator) RemoveRoot(ptr heap.GcPtr) bool {
	return c.store.RemoveRoot(ptr.ID())
}

// Downgrade return a weak reference to object.
func (c *Coordinator) Downgrade(ptr heap.GcPtr) heap.WeakGcPtr {
	return c.store.Downgrade(ptr)
}

// Get return a strong pointer for a registered object.
func (c *Coordinator) Get(id api.ObjectID) (heap.GcPtr, bool) {
	return c.store.Get(id)
}

//---- collections, implement api.Allocator

// CollectMinor implement api.Allocator interface.
func (c *Coordinator) CollectMinor() {
	c.collector.CollectMinor()
}

// CollectMajor implement api.Allocator interface.
func (c *Coordinator) CollectMajor(full bool) {
	c.collector.CollectMajor(full)
}

// CollectAll implement api.Allocator interface.
func (c *Coordinator) CollectAll() {
	c.collector.CollectAll()
}

// CollectGeneration collect a single generation and return its cycle
// statistics.
func (c *Coordinator) CollectGeneration(gen api.GenerationID) heap.CycleStats {
	return c.collector.CollectGeneration(gen)
}

// History return upto limit recent collection cycles, oldest first.
func (c *Coordinator) History(limit int) []heap.CycleStats {
	return c.collector.History(limit)
}

// Cleanup implement api.Allocator interface. Forget TLABs of mutators
// that exited without unregistering.
func (c *Coordinator) Cleanup() int {
	return c.tlabs.CleanupDeadThreads()
}

// RetireTLAB retire mutator's current TLAB, the next allocation gets
// a fresh buffer.
func (c *Coordinator) RetireTLAB(m *Mutator) bool {
	return c.tlabs.Retire(m.id)
}

// Sampler return the allocation sampler.
func (c *Coordinator) Sampler() *sampler.Sampler {
	return c.sampler
}

// Validate heap consistency, panic on first violation.
func (c *Coordinator) Validate() {
	c.collector.Validate()
}

// Close the heap, further registration and allocation fail with
// api.ErrorClosed. Objects stay readable through their handles.
func (c *Coordinator) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return api.ErrorClosed
	}
	close(c.finch)
	c.wg.Wait()
	if c.logstats {
		c.Log()
	}
	infof("%v closed\n", c.logprefix)
	return nil
}
