package heap

import "fmt"
import "sync"
import "time"
import "weak"
import "sync/atomic"

import "github.com/bnclabs/gengc/api"

type generation struct {
	mu  sync.RWMutex
	set map[api.ObjectID]struct{}
}

// Store is the generational object store. It owns the per generation
// sets, the registry of live objects, the root set and the table of
// outstanding weak references.
type Store struct {
	// 64-bit aligned stats
	n_allocated  int64
	n_freed      int64
	n_promoted   int64
	n_allocbytes int64
	n_freedbytes int64
	livebytes    [api.NumGenerations]int64

	name string
	gens [api.NumGenerations]*generation

	// registry, slot arena of headers with a free list of slots.
	regmu    sync.RWMutex
	slots    []*ObjectHeader
	stamps   []uint32
	freelist []uint32

	rootmu sync.RWMutex
	roots  map[api.ObjectID]struct{}

	weakmu sync.RWMutex
	weaks  map[api.ObjectID]int64

	logprefix string
}

// NewStore create an empty object store.
func NewStore(name string) *Store {
	store := &Store{
		name:      name,
		roots:     make(map[api.ObjectID]struct{}),
		weaks:     make(map[api.ObjectID]int64),
		logprefix: fmt.Sprintf("HEAP [%s]", name),
	}
	for i := range store.gens {
		store.gens[i] = &generation{set: make(map[api.ObjectID]struct{})}
	}
	return store
}

// Allocate register payload as a new object in generation gen, which
// is either api.Young or api.LargeObject. Raw is the memory reserved
// for the object, if any.
func (store *Store) Allocate(
	payload interface{}, size int64, gen api.GenerationID,
	path Allocpath, raw []byte) GcPtr {

	return store.allocate(payload, size, gen, path, raw, false)
}

// AllocateRoot is same as Allocate, but the new object is added to the
// root set before any collection can observe it.
func (store *Store) AllocateRoot(
	payload interface{}, size int64, gen api.GenerationID,
	path Allocpath, raw []byte) GcPtr {

	return store.allocate(payload, size, gen, path, raw, true)
}

func (store *Store) allocate(
	payload interface{}, size int64, gen api.GenerationID,
	path Allocpath, raw []byte, root bool) GcPtr {

	if gen != api.Young && gen != api.LargeObject {
		panic(fmt.Errorf("%v cannot allocate in %v", store.logprefix, gen))
	}
	hdr := &ObjectHeader{
		generation: int32(gen),
		size:       size,
		path:       path,
		payload:    payload,
		raw:        raw,
		born:       time.Now(),
	}

	g := store.gens[gen]
	g.mu.Lock()
	store.regmu.Lock()
	var slot uint32
	if n := len(store.freelist); n > 0 {
		slot = store.freelist[n-1]
		store.freelist = store.freelist[:n-1]
	} else {
		slot = uint32(len(store.slots))
		store.slots = append(store.slots, nil)
		store.stamps = append(store.stamps, 0)
	}
	hdr.id = api.MakeObjectID(slot, store.stamps[slot])
	store.slots[slot] = hdr
	store.regmu.Unlock()
	if root {
		store.AddRoot(hdr.id)
	}
	g.set[hdr.id] = struct{}{}
	atomic.AddInt64(&store.livebytes[gen], size)
	g.mu.Unlock()

	atomic.AddInt64(&store.n_allocated, 1)
	atomic.AddInt64(&store.n_allocbytes, size)
	return GcPtr{hdr: hdr}
}

// Lookup return the header for id, nil if id is not registered or
// refers to a reclaimed object.
func (store *Store) Lookup(id api.ObjectID) *ObjectHeader {
	if id.Isnil() {
		return nil
	}
	store.regmu.RLock()
	defer store.regmu.RUnlock()
	return store.lookup(id)
}

// must be called with registry lock.
func (store *Store) lookup(id api.ObjectID) *ObjectHeader {
	slot := id.Slot()
	if int(slot) >= len(store.slots) || store.stamps[slot] != id.Stamp() {
		return nil
	}
	return store.slots[slot]
}

// Get return a strong pointer for id.
func (store *Store) Get(id api.ObjectID) (GcPtr, bool) {
	if hdr := store.Lookup(id); hdr != nil {
		return GcPtr{hdr: hdr}, true
	}
	return NilPtr, false
}

// Isregistered return true if id refers to a live object.
func (store *Store) Isregistered(id api.ObjectID) bool {
	return store.Lookup(id) != nil
}

// must be called with write lock on hdr's generation, after removing
// hdr from the generation's set.
func (store *Store) free(hdr *ObjectHeader) {
	gen := hdr.Generation()
	store.regmu.Lock()
	slot := hdr.id.Slot()
	if store.slots[slot] != hdr {
		store.regmu.Unlock()
		panic(fmt.Errorf("%v %v not in registry", store.logprefix, hdr.id))
	}
	store.slots[slot] = nil
	store.stamps[slot]++
	store.freelist = append(store.freelist, slot)
	store.regmu.Unlock()

	store.weakmu.Lock()
	delete(store.weaks, hdr.id)
	store.weakmu.Unlock()

	atomic.AddInt64(&store.livebytes[gen], -hdr.size)
	atomic.AddInt64(&store.n_freed, 1)
	atomic.AddInt64(&store.n_freedbytes, hdr.size)
}

// must be called with write lock on hdr's current generation and on
// the next generation.
func (store *Store) promote(hdr *ObjectHeader) {
	from := hdr.Generation()
	to := from + 1
	delete(store.gens[from].set, hdr.id)
	store.gens[to].set[hdr.id] = struct{}{}
	hdr.setgeneration(to)
	atomic.AddInt64(&store.livebytes[from], -hdr.size)
	atomic.AddInt64(&store.livebytes[to], hdr.size)
	atomic.AddInt64(&store.n_promoted, 1)
}

// Contains return true if id belongs to generation gen.
func (store *Store) Contains(gen api.GenerationID, id api.ObjectID) bool {
	g := store.gens[gen]
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.set[id]
	return ok
}

// Objects return a snapshot of ObjectIDs in generation gen.
func (store *Store) Objects(gen api.GenerationID) []api.ObjectID {
	g := store.gens[gen]
	g.mu.RLock()
	defer g.mu.RUnlock()
	return store.objects(g)
}

func (store *Store) objects(g *generation) []api.ObjectID {
	ids := make([]api.ObjectID, 0, len(g.set))
	for id := range g.set {
		ids = append(ids, id)
	}
	return ids
}

// Count return number of objects in generation gen.
func (store *Store) Count(gen api.GenerationID) int64 {
	g := store.gens[gen]
	g.mu.RLock()
	defer g.mu.RUnlock()
	return int64(len(g.set))
}

// Livebytes return bytes held by objects in generation gen.
func (store *Store) Livebytes(gen api.GenerationID) int64 {
	return atomic.LoadInt64(&store.livebytes[gen])
}

// Totalbytes return bytes held by all registered objects.
func (store *Store) Totalbytes() (total int64) {
	for gen := range store.livebytes {
		total += atomic.LoadInt64(&store.livebytes[gen])
	}
	return total
}

// Totalobjects return number of registered objects.
func (store *Store) Totalobjects() int64 {
	return atomic.LoadInt64(&store.n_allocated) - atomic.LoadInt64(&store.n_freed)
}

//---- roots

// AddRoot add id to root set. Rooted objects survive every collection
// until removed from root set.
func (store *Store) AddRoot(id api.ObjectID) {
	store.rootmu.Lock()
	store.roots[id] = struct{}{}
	store.rootmu.Unlock()
}

// RemoveRoot remove id from root set, return false if id is not a
// root.
func (store *Store) RemoveRoot(id api.ObjectID) bool {
	store.rootmu.Lock()
	defer store.rootmu.Unlock()
	if _, ok := store.roots[id]; ok {
		delete(store.roots, id)
		return true
	}
	return false
}

// Isroot return true if id is in root set.
func (store *Store) Isroot(id api.ObjectID) bool {
	store.rootmu.RLock()
	defer store.rootmu.RUnlock()
	_, ok := store.roots[id]
	return ok
}

// Roots return a snapshot of the root set.
func (store *Store) Roots() []api.ObjectID {
	store.rootmu.RLock()
	defer store.rootmu.RUnlock()
	ids := make([]api.ObjectID, 0, len(store.roots))
	for id := range store.roots {
		ids = append(ids, id)
	}
	return ids
}

// Rootcount return size of root set.
func (store *Store) Rootcount() int64 {
	store.rootmu.RLock()
	defer store.rootmu.RUnlock()
	return int64(len(store.roots))
}

//---- weak references

// Downgrade return a weak pointer for p.
func (store *Store) Downgrade(p GcPtr) WeakGcPtr {
	if p.Isnil() {
		return WeakGcPtr{store: store}
	}
	id := p.ID()
	if store.Isregistered(id) {
		store.weakmu.Lock()
		store.weaks[id]++
		store.weakmu.Unlock()
	}
	return WeakGcPtr{store: store, id: id, hdr: weak.Make(p.hdr)}
}

func (store *Store) releaseweak(id api.ObjectID) {
	store.weakmu.Lock()
	defer store.weakmu.Unlock()
	if n, ok := store.weaks[id]; ok && n > 1 {
		store.weaks[id] = n - 1
	} else if ok {
		delete(store.weaks, id)
	}
}

// Weakcount return number of outstanding weak references to
// registered objects.
func (store *Store) Weakcount() (n int64) {
	store.weakmu.RLock()
	defer store.weakmu.RUnlock()
	for _, count := range store.weaks {
		n += count
	}
	return n
}

// Weakobjects return number of registered objects with outstanding
// weak references.
func (store *Store) Weakobjects() int64 {
	store.weakmu.RLock()
	defer store.weakmu.RUnlock()
	return int64(len(store.weaks))
}

//---- statistics and validation

// Stats return store statistics.
func (store *Store) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"n_allocated":  atomic.LoadInt64(&store.n_allocated),
		"n_freed":      atomic.LoadInt64(&store.n_freed),
		"n_promoted":   atomic.LoadInt64(&store.n_promoted),
		"n_allocbytes": atomic.LoadInt64(&store.n_allocbytes),
		"n_freedbytes": atomic.LoadInt64(&store.n_freedbytes),
		"n_objects":    store.Totalobjects(),
		"n_roots":      store.Rootcount(),
		"n_weaks":      store.Weakcount(),
		"n_weakobjs":   store.Weakobjects(),
		"livebytes":    store.Totalbytes(),
	}
	for i := range store.gens {
		gen := api.GenerationID(i)
		stats[gen.String()+".count"] = store.Count(gen)
		stats[gen.String()+".livebytes"] = store.Livebytes(gen)
	}
	store.regmu.RLock()
	stats["n_slots"] = int64(len(store.slots))
	stats["n_freeslots"] = int64(len(store.freelist))
	store.regmu.RUnlock()
	return stats
}

// Validate the store for consistency, panic on the first violation.
// Caller should make sure collection is not in progress.
func (store *Store) Validate() {
	for _, g := range store.gens {
		g.mu.RLock()
		defer g.mu.RUnlock()
	}
	store.regmu.RLock()
	defer store.regmu.RUnlock()

	seen, total := map[api.ObjectID]api.GenerationID{}, 0
	for i, g := range store.gens {
		gen, livebytes := api.GenerationID(i), int64(0)
		for id := range g.set {
			if other, ok := seen[id]; ok {
				fmsg := "%v %v in both %v and %v"
				panic(fmt.Errorf(fmsg, store.logprefix, id, other, gen))
			}
			seen[id] = gen
			hdr := store.lookup(id)
			if hdr == nil {
				fmsg := "%v %v in %v is not registered"
				panic(fmt.Errorf(fmsg, store.logprefix, id, gen))
			} else if x := hdr.Generation(); x != gen {
				fmsg := "%v %v in %v, header says %v"
				panic(fmt.Errorf(fmsg, store.logprefix, id, gen, x))
			}
			livebytes += hdr.size
		}
		if x := atomic.LoadInt64(&store.livebytes[i]); x != livebytes {
			fmsg := "%v %v livebytes %v, expected %v"
			panic(fmt.Errorf(fmsg, store.logprefix, gen, x, livebytes))
		}
		total += len(g.set)
	}

	registered := 0
	for slot, hdr := range store.slots {
		if hdr == nil {
			continue
		}
		registered++
		if x := hdr.id.Stamp(); x != store.stamps[slot] {
			fmsg := "%v slot %v stamp %v, header has %v"
			panic(fmt.Errorf(fmsg, store.logprefix, slot, store.stamps[slot], x))
		}
	}
	if registered != total {
		fmsg := "%v %v registered objects, %v in generations"
		panic(fmt.Errorf(fmsg, store.logprefix, registered, total))
	} else if x := len(store.slots) - len(store.freelist); x != registered {
		fmsg := "%v %v slots in use, %v registered"
		panic(fmt.Errorf(fmsg, store.logprefix, x, registered))
	}
}
