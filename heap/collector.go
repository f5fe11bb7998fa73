package heap

import "fmt"
import "sync"
import "time"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"
import "github.com/bnclabs/gengc/api"
import "github.com/bnclabs/gengc/lib"

// Collector is a stop-the-generation mark and sweep collector over
// a Store. Only one collection runs at a time.
type Collector struct {
	// 64-bit aligned stats
	n_minor      int64
	n_major      int64
	n_freed      int64
	n_promoted   int64
	n_freedbytes int64

	mu      sync.Mutex // serializes collections
	store   *Store
	epoch   uint64
	stack   []api.ObjectID // reused across cycles
	history *history

	// pauses in microseconds
	h_pause    *lib.HistogramInt64
	minorpause lib.AverageInt64
	majorpause lib.AverageInt64

	// settings
	maxpromotions int64
	historysize   int64
	logprefix     string
}

// NewCollector create a collector for store, refer to
// Defaultsettings() for configurable parameters.
func NewCollector(name string, store *Store, setts s.Settings) *Collector {
	c := &Collector{
		store:     store,
		h_pause:   lib.NewhistorgramInt64(0, 50000, 500),
		logprefix: fmt.Sprintf("GC [%s]", name),
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	c.readsettings(setts)
	c.history = newhistory(c.historysize)
	return c
}

func (c *Collector) readsettings(setts s.Settings) {
	c.maxpromotions = setts.Int64("maxpromotions")
	c.historysize = setts.Int64("history.size")
	if c.maxpromotions < 0 {
		fmsg := "%v invalid maxpromotions %v"
		panic(fmt.Errorf(fmsg, c.logprefix, c.maxpromotions))
	} else if c.historysize <= 0 {
		fmsg := "%v invalid history.size %v"
		panic(fmt.Errorf(fmsg, c.logprefix, c.historysize))
	}
}

// Store return the object store under collection.
func (c *Collector) Store() *Store {
	return c.store
}

// CollectGeneration collect a single generation.
func (c *Collector) CollectGeneration(gen api.GenerationID) CycleStats {
	if !gen.Isvalid() {
		panic(fmt.Errorf("%v invalid generation %v", c.logprefix, gen))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collect(gen)
}

// CollectIfAbove collect gen only if its live bytes exceed threshold,
// checked after acquiring the collector. Return true if a collection
// was done.
func (c *Collector) CollectIfAbove(gen api.GenerationID, threshold int64) bool {
	if c.store.Livebytes(gen) <= threshold {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.Livebytes(gen) <= threshold {
		return false
	}
	c.collect(gen)
	return true
}

// CollectMinor collect the young generation.
func (c *Collector) CollectMinor() CycleStats {
	return c.CollectGeneration(api.Young)
}

// CollectMajor collect the oldest generation and large objects. If
// full is true, collect every generation.
func (c *Collector) CollectMajor(full bool) []CycleStats {
	if full {
		return c.CollectAll()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return []CycleStats{c.collect(api.MaxGenerations), c.collect(api.LargeObject)}
}

// CollectAll collect every generation, youngest first, and then large
// objects.
func (c *Collector) CollectAll() []CycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	cycles := make([]CycleStats, 0, api.NumGenerations)
	for gen := api.Young; gen <= api.LargeObject; gen++ {
		cycles = append(cycles, c.collect(gen))
	}
	return cycles
}

// must be called with collector lock.
func (c *Collector) collect(gen api.GenerationID) CycleStats {
	start := time.Now()
	c.epoch++
	epoch := c.epoch

	g := c.store.gens[gen]
	g.mu.Lock()
	defer g.mu.Unlock()

	before := int64(len(g.set))
	c.markroots(gen, epoch)
	c.markolder(gen, epoch)
	freed, freedbytes, promoted := c.sweep(gen, epoch)

	cycle := CycleStats{
		Epoch:      epoch,
		Generation: gen,
		Before:     before,
		After:      int64(len(g.set)),
		Freed:      freed,
		Promoted:   promoted,
		FreedBytes: freedbytes,
		LiveBytes:  c.store.Totalbytes(),
		Duration:   time.Since(start),
		Timestamp:  start,
	}
	c.account(cycle)

	fmsg := "%v %v collected in %v, freed %v objects (%v) promoted %v\n"
	verbosef(fmsg, c.logprefix, gen, cycle.Duration, freed,
		humanize.Bytes(uint64(freedbytes)), promoted)
	return cycle
}

// mark everything reachable from roots, without descending into
// generations older than gen.
func (c *Collector) markroots(gen api.GenerationID, epoch uint64) {
	c.markfrom(c.store.Roots(), gen, epoch)
}

// treat every object older than gen as a root, mark its references
// into gen and younger.
func (c *Collector) markolder(gen api.GenerationID, epoch uint64) {
	for older := gen + 1; older <= api.LargeObject; older++ {
		for _, id := range c.store.Objects(older) {
			hdr := c.store.Lookup(id)
			if hdr == nil {
				continue
			}
			c.markfrom(api.Referencesof(hdr.payload), gen, epoch)
		}
	}
}

// iterative depth first marking.
func (c *Collector) markfrom(ids []api.ObjectID, gen api.GenerationID, epoch uint64) {
	stack := append(c.stack[:0], ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		hdr := c.store.Lookup(id)
		if hdr == nil || hdr.Generation() > gen {
			continue
		} else if !hdr.mark(epoch) {
			continue
		}
		stack = append(stack, api.Referencesof(hdr.payload)...)
	}
	c.stack = stack[:0]
}

// must be called with write lock on gen.
func (c *Collector) sweep(
	gen api.GenerationID, epoch uint64) (freed, freedbytes, promoted int64) {

	g := c.store.gens[gen]
	var dead, survivors []*ObjectHeader
	for id := range g.set {
		hdr := c.store.Lookup(id)
		if hdr == nil {
			fmsg := "%v %v in %v is not registered"
			panic(fmt.Errorf(fmsg, c.logprefix, id, gen))
		}
		if hdr.ismarked(epoch) || c.store.Isroot(id) {
			survivors = append(survivors, hdr)
			continue
		}
		dead = append(dead, hdr)
	}

	for _, hdr := range dead {
		delete(g.set, hdr.id)
		c.store.free(hdr)
		freed++
		freedbytes += hdr.size
	}

	if gen < api.MaxGenerations && len(survivors) > 0 {
		next := c.store.gens[gen+1]
		next.mu.Lock()
		for _, hdr := range survivors {
			if promoted >= c.maxpromotions {
				break
			}
			c.store.promote(hdr)
			promoted++
		}
		next.mu.Unlock()
	}
	return freed, freedbytes, promoted
}

// must be called with collector lock.
func (c *Collector) account(cycle CycleStats) {
	pause := int64(cycle.Duration / time.Microsecond)
	c.h_pause.Add(pause)
	if cycle.Generation == api.Young {
		atomic.AddInt64(&c.n_minor, 1)
		c.minorpause.Add(pause)
	} else {
		atomic.AddInt64(&c.n_major, 1)
		c.majorpause.Add(pause)
	}
	atomic.AddInt64(&c.n_freed, cycle.Freed)
	atomic.AddInt64(&c.n_freedbytes, cycle.FreedBytes)
	atomic.AddInt64(&c.n_promoted, cycle.Promoted)
	c.history.add(cycle)
}

//---- statistics

// Minorcount return number of young generation collections.
func (c *Collector) Minorcount() int64 {
	return atomic.LoadInt64(&c.n_minor)
}

// Majorcount return number of collections of older generations and
// large objects.
func (c *Collector) Majorcount() int64 {
	return atomic.LoadInt64(&c.n_major)
}

// Pauses return average pause for minor and major collections.
func (c *Collector) Pauses() (minor, major time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	minor = time.Duration(c.minorpause.Meanf() * float64(time.Microsecond))
	major = time.Duration(c.majorpause.Meanf() * float64(time.Microsecond))
	return minor, major
}

// History return upto limit recent cycles, oldest first.
func (c *Collector) History(limit int) []CycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.recent(limit)
}

// Stats return collector statistics.
func (c *Collector) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"n_minor":      atomic.LoadInt64(&c.n_minor),
		"n_major":      atomic.LoadInt64(&c.n_major),
		"n_freed":      atomic.LoadInt64(&c.n_freed),
		"n_freedbytes": atomic.LoadInt64(&c.n_freedbytes),
		"n_promoted":   atomic.LoadInt64(&c.n_promoted),
		"n_cycles":     atomic.LoadInt64(&c.n_minor) + atomic.LoadInt64(&c.n_major),
		"h_pause":      c.h_pause.Fullstats(),
		"minorpause":   c.minorpause.Stats(),
		"majorpause":   c.majorpause.Stats(),
	}
}

// Validate store consistency, collections are held off meanwhile.
func (c *Collector) Validate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Validate()
}

// Log vital information.
func (c *Collector) Log() {
	stats := c.Stats()
	a, b := stats["n_minor"], stats["n_major"]
	infof("%v cycles: %10d(min) %10d(maj)\n", c.logprefix, a, b)
	freed := humanize.Bytes(uint64(stats["n_freedbytes"].(int64)))
	a, b = stats["n_freed"], stats["n_promoted"]
	infof("%v objs  : %10d(fre) %10d(pro) %v\n", c.logprefix, a, b, freed)
	c.mu.Lock()
	infof("%v pause(us): %v\n", c.logprefix, c.h_pause.Logstring())
	c.mu.Unlock()
}
