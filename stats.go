package gengc

import "fmt"
import "time"
import "strings"
import "sync/atomic"

import humanize "github.com/dustin/go-humanize"
import "github.com/bnclabs/gengc/api"

// Statistics summarize heap behaviour. Percentages are in the range
// [0, 100].
type Statistics struct {
	MinorCollections    int64
	MajorCollections    int64
	AvgMinorPause       time.Duration
	AvgMajorPause       time.Duration
	TotalAllocations    int64
	TotalAllocatedBytes int64
	AvgAllocationSize   int64
	YoungUtilization    float64 // young live bytes against nursery threshold
	OldUtilization      float64 // gen1..gen3 live bytes against heap capacity
	AllocationRate      float64 // allocations per second, from samples
	FailureRate         float64
	TLABUtilization     float64
	TLABWaste           float64
}

// Healthy return true if pauses are short, allocations seldom fail,
// TLABs are well used and generations are not close to full.
func (stats Statistics) Healthy() bool {
	return stats.AvgMinorPause < 15*time.Millisecond &&
		stats.AvgMajorPause < 75*time.Millisecond &&
		stats.FailureRate < 1.0 &&
		stats.TLABUtilization > 70.0 &&
		stats.YoungUtilization < 95.0 &&
		stats.OldUtilization < 90.0
}

// Score heap performance between 0.0 and 1.0, weighing minor pauses
// against 50ms, TLAB utilization, failure rate against 10% and whether
// allocations are happening at all.
func (stats Statistics) Score() float64 {
	minorms := float64(stats.AvgMinorPause) / float64(time.Millisecond)
	pause := 1.0 - minf(minorms/50.0, 1.0)
	uz := minf(stats.TLABUtilization/100.0, 1.0)
	failure := 1.0 - minf(stats.FailureRate/10.0, 1.0)
	alloc := 0.0
	if stats.AllocationRate > 0 {
		alloc = 1.0
	}
	return (pause + uz + failure + alloc) / 4.0
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Statistics return a summary of heap behaviour.
func (c *Coordinator) Statistics() Statistics {
	minor, major := c.collector.Pauses()
	allocs := atomic.LoadInt64(&c.n_allocs)
	bytes := atomic.LoadInt64(&c.n_allocbytes)
	failed := atomic.LoadInt64(&c.n_failed)

	stats := Statistics{
		MinorCollections:    c.collector.Minorcount(),
		MajorCollections:    c.collector.Majorcount(),
		AvgMinorPause:       minor,
		AvgMajorPause:       major,
		TotalAllocations:    allocs,
		TotalAllocatedBytes: bytes,
		AllocationRate:      c.sampler.AllocationRate(),
		TLABUtilization:     c.tlabs.AverageUtilization(),
		TLABWaste:           c.tlabs.WastePercentage(),
	}
	if allocs > 0 {
		stats.AvgAllocationSize = bytes / allocs
	}
	if total := allocs + failed; total > 0 {
		stats.FailureRate = (float64(failed) / float64(total)) * 100
	}
	young := c.store.Livebytes(api.Young)
	stats.YoungUtilization = (float64(young) / float64(c.thresholds[api.Young])) * 100
	old := int64(0)
	for gen := api.Young + 1; gen <= api.MaxGenerations; gen++ {
		old += c.store.Livebytes(gen)
	}
	stats.OldUtilization = (float64(old) / float64(c.capacity)) * 100
	return stats
}

// DebugInfo is a snapshot of heap contents.
type DebugInfo struct {
	Counts       [api.NumGenerations]int64 // objects per generation
	Livebytes    [api.NumGenerations]int64
	Roots        int64
	Weaks        int64 // outstanding weak references
	TotalObjects int64
	Mutators     int64
	TLABs        int64
}

// DebugInfo return a snapshot of heap contents.
func (c *Coordinator) DebugInfo() DebugInfo {
	info := DebugInfo{
		Roots:        c.store.Rootcount(),
		Weaks:        c.store.Weakcount(),
		TotalObjects: c.store.Totalobjects(),
		Mutators:     atomic.LoadInt64(&c.n_mutators),
		TLABs:        int64(c.tlabs.Count()),
	}
	for i := range info.Counts {
		gen := api.GenerationID(i)
		info.Counts[i] = c.store.Count(gen)
		info.Livebytes[i] = c.store.Livebytes(gen)
	}
	return info
}

func (info DebugInfo) String() string {
	ss := []string{}
	for i, count := range info.Counts {
		gen := api.GenerationID(i)
		size := humanize.Bytes(uint64(info.Livebytes[i]))
		ss = append(ss, fmt.Sprintf("%v:%v(%v)", gen, count, size))
	}
	fmsg := "objects:%v roots:%v weaks:%v mutators:%v tlabs:%v {%v}"
	return fmt.Sprintf(fmsg, info.TotalObjects, info.Roots, info.Weaks,
		info.Mutators, info.TLABs, strings.Join(ss, " "))
}

// Stats implement api.Allocator interface.
func (c *Coordinator) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"n_allocs":     atomic.LoadInt64(&c.n_allocs),
		"n_allocbytes": atomic.LoadInt64(&c.n_allocbytes),
		"n_failed":     atomic.LoadInt64(&c.n_failed),
		"n_tlab":       atomic.LoadInt64(&c.n_tlab),
		"n_direct":     atomic.LoadInt64(&c.n_direct),
		"n_large":      atomic.LoadInt64(&c.n_large),
		"n_tlabfails":  atomic.LoadInt64(&c.n_tlabfails),
		"n_forcedgc":   atomic.LoadInt64(&c.n_forcedgc),
		"n_autogc":     atomic.LoadInt64(&c.n_autogc),
		"n_mutators":   atomic.LoadInt64(&c.n_mutators),
	}
	for i := range c.n_gens {
		key := fmt.Sprintf("n_allocs.%v", api.GenerationID(i))
		stats[key] = atomic.LoadInt64(&c.n_gens[i])
	}
	stats["heap"] = c.store.Stats()
	stats["collector"] = c.collector.Stats()
	stats["tlab"] = c.tlabs.Stats()
	stats["sampler"] = c.sampler.Stats()
	return stats
}

// Log vital information.
func (c *Coordinator) Log() {
	stats, lprefix := c.Stats(), c.logprefix

	a, b := stats["n_allocs"], stats["n_failed"]
	bytes := humanize.Bytes(uint64(stats["n_allocbytes"].(int64)))
	infof("%v alloc: %10d(ok) %10d(fail) %v\n", lprefix, a, b, bytes)

	a, b, d := stats["n_tlab"], stats["n_direct"], stats["n_large"]
	infof("%v paths: %10d(tlb) %10d(dir) %10d(lrg)\n", lprefix, a, b, d)

	a, b, d = stats["n_autogc"], stats["n_forcedgc"], stats["n_tlabfails"]
	infof("%v gc   : %10d(aut) %10d(frc) %10d(tlf)\n", lprefix, a, b, d)

	infof("%v heap : %v\n", lprefix, c.DebugInfo())
	c.collector.Log()
	c.tlabs.Log()

	st := c.Statistics()
	fmsg := "%v health: %v score: %.2f minor:%v major:%v\n"
	infof(fmsg, lprefix, st.Healthy(), st.Score(), st.AvgMinorPause, st.AvgMajorPause)
}
