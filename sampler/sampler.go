// Package sampler records every Nth allocation for profiling. Recording
// never blocks the allocating mutator, a sample is dropped if the
// sample ring is contended.
package sampler

import "fmt"
import "sync"
import "time"
import "runtime"
import "path/filepath"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/gengc/api"

// Sample of a single allocation.
type Sample struct {
	Size       int64
	Mutator    uint64
	Tid        int // OS thread, 0 where unsupported
	Generation api.GenerationID
	Site       string // file:line of the allocating call
	Timestamp  time.Time
}

func (sm Sample) String() string {
	return fmt.Sprintf("sample<%v bytes %v mutator:%v tid:%v at %v>",
		sm.Size, sm.Generation, sm.Mutator, sm.Tid, sm.Site)
}

// Sampler maintains a bounded ring of recent samples.
type Sampler struct {
	// 64-bit aligned stats
	n_allocs  int64
	n_samples int64
	n_dropped int64

	mu    sync.Mutex
	ring  []Sample
	head  int // next slot to write
	count int

	rate       int64
	maxsamples int64
	logprefix  string
}

// NewSampler create a new allocation sampler, refer to
// Defaultsettings() for configurable parameters.
func NewSampler(name string, setts s.Settings) *Sampler {
	sm := &Sampler{logprefix: fmt.Sprintf("SMPL [%s]", name)}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	sm.readsettings(setts)
	sm.ring = make([]Sample, sm.maxsamples)
	infof("%v sampling 1 in %v allocations, upto %v samples\n",
		sm.logprefix, sm.rate, sm.maxsamples)
	return sm
}

func (sm *Sampler) readsettings(setts s.Settings) {
	sm.rate = setts.Int64("rate")
	sm.maxsamples = setts.Int64("maxsamples")
	if sm.rate <= 0 {
		panic(fmt.Errorf("%v invalid sampling rate %v", sm.logprefix, sm.rate))
	} else if sm.maxsamples <= 0 {
		fmsg := "%v invalid maxsamples %v"
		panic(fmt.Errorf(fmsg, sm.logprefix, sm.maxsamples))
	}
}

// MaybeSample count an allocation and record it if it is due for
// sampling. Skip is the number of stack frames, above the caller of
// MaybeSample, to skip while locating the allocation site. Return
// true if a sample was recorded.
func (sm *Sampler) MaybeSample(
	size int64, gen api.GenerationID, mutator uint64, skip int) bool {

	n := atomic.AddInt64(&sm.n_allocs, 1) - 1
	if n%sm.rate != 0 {
		return false
	}

	sample := Sample{
		Size:       size,
		Mutator:    mutator,
		Tid:        gettid(),
		Generation: gen,
		Timestamp:  time.Now(),
	}
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		sample.Site = fmt.Sprintf("%v:%v", filepath.Base(file), line)
	}

	if !sm.mu.TryLock() {
		atomic.AddInt64(&sm.n_dropped, 1)
		return false
	}
	sm.ring[sm.head] = sample
	sm.head = (sm.head + 1) % len(sm.ring)
	if sm.count < len(sm.ring) {
		sm.count++
	}
	sm.mu.Unlock()

	atomic.AddInt64(&sm.n_samples, 1)
	return true
}

// must be called under lock, oldest first.
func (sm *Sampler) ordered() []Sample {
	samples := make([]Sample, 0, sm.count)
	start := (sm.head - sm.count + len(sm.ring)) % len(sm.ring)
	for i := 0; i < sm.count; i++ {
		samples = append(samples, sm.ring[(start+i)%len(sm.ring)])
	}
	return samples
}

// Recent return upto limit most recent samples, oldest first.
func (sm *Sampler) Recent(limit int) []Sample {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	samples := sm.ordered()
	if limit >= 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}

// AllocationRate estimate allocations per second from the span of
// retained samples. Return 0 with less than 2 samples.
func (sm *Sampler) AllocationRate() float64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.count < 2 {
		return 0
	}
	samples := sm.ordered()
	oldest, newest := samples[0].Timestamp, samples[len(samples)-1].Timestamp
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(int64(len(samples))*sm.rate) / span
}

// Clear forget retained samples, counters are not reset.
func (sm *Sampler) Clear() {
	sm.mu.Lock()
	sm.head, sm.count = 0, 0
	for i := range sm.ring {
		sm.ring[i] = Sample{}
	}
	sm.mu.Unlock()
}

// Count return number of retained samples.
func (sm *Sampler) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.count
}

// Dropped return number of samples dropped due to contention.
func (sm *Sampler) Dropped() int64 {
	return atomic.LoadInt64(&sm.n_dropped)
}

// Stats return sampler statistics.
func (sm *Sampler) Stats() map[string]interface{} {
	return map[string]interface{}{
		"n_allocs":   atomic.LoadInt64(&sm.n_allocs),
		"n_samples":  atomic.LoadInt64(&sm.n_samples),
		"n_dropped":  atomic.LoadInt64(&sm.n_dropped),
		"n_retained": int64(sm.Count()),
		"rate":       sm.rate,
		"allocrate":  sm.AllocationRate(),
	}
}
