package gengc

import "sync"
import "time"
import "errors"
import "runtime"
import "strings"
import "testing"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/gengc/api"
import "github.com/bnclabs/gengc/heap"
import "github.com/stretchr/testify/require"

func newcoordinator(t *testing.T, setts s.Settings) (*Coordinator, *Mutator) {
	c := New("test", setts)
	m, err := c.Register()
	require.NoError(t, err)
	return c, m
}

func TestAllocateYoung(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	p, err := m.Allocate("hello", 64)
	require.NoError(t, err)
	require.Equal(t, api.Young, p.Generation())
	require.Equal(t, heap.PathTLAB, p.Header().Path())
	require.Equal(t, "hello", p.Value())
	require.Len(t, p.Header().Bytes(), 64)
	require.True(t, c.store.Contains(api.Young, p.ID()))

	q, ok := c.Get(p.ID())
	require.True(t, ok)
	require.True(t, q.Equal(p))

	stats := c.Stats()
	require.Equal(t, int64(1), stats["n_allocs"])
	require.Equal(t, int64(1), stats["n_tlab"])
	require.Equal(t, int64(1), stats["n_allocs.young"])
	c.Validate()
}

func TestAllocateInvalid(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	for _, size := range []int64{0, -1} {
		p, err := m.Allocate(nil, size)
		require.True(t, errors.Is(err, api.ErrorInvalidSize))
		require.True(t, p.Isnil())
	}
	require.Equal(t, int64(2), c.Stats()["n_failed"])
	require.Equal(t, int64(0), c.Stats()["n_allocs"])
}

func TestUnregister(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	_, err := m.Allocate(nil, 64)
	require.NoError(t, err)
	require.Equal(t, int64(1), c.DebugInfo().TLABs)
	require.Equal(t, int64(1), c.DebugInfo().Mutators)

	require.NoError(t, m.Unregister())
	require.False(t, m.Isactive())
	require.Equal(t, api.ErrorUnregistered, m.Unregister())
	_, err = m.Allocate(nil, 64)
	require.Equal(t, api.ErrorUnregistered, err)
	require.Equal(t, int64(0), c.DebugInfo().TLABs)
	require.Equal(t, int64(0), c.DebugInfo().Mutators)
}

func TestNurseryTrigger(t *testing.T) {
	c, m := newcoordinator(t, s.Settings{"nursery.threshold": int64(1000)})
	defer c.Close()

	for i := 1; i <= 20; i++ {
		_, err := m.Allocate(i, 64)
		require.NoError(t, err)
		if i < 16 {
			require.Equal(t, int64(0), c.collector.Minorcount(), "allocation %v", i)
		} else {
			require.Equal(t, int64(1), c.collector.Minorcount(), "allocation %v", i)
		}
	}
	require.Equal(t, int64(0), c.collector.Majorcount())
	history := c.History(-1)
	require.Len(t, history, 1)
	require.Equal(t, int64(16), history[0].Freed)
	require.Equal(t, int64(16*64), history[0].FreedBytes)
	require.Equal(t, int64(1), c.Stats()["n_autogc"])
	require.Equal(t, int64(4*64), c.store.Livebytes(api.Young))
}

func TestSingleTLAB(t *testing.T) {
	setts := s.Settings{"tlab.size": int64(1024), "tlab.maxsize": int64(1024)}
	c, m := newcoordinator(t, setts)
	defer c.Close()

	for i := 0; i < 10; i++ {
		p, err := m.Allocate(i, 64)
		require.NoError(t, err)
		require.Equal(t, heap.PathTLAB, p.Header().Path())
	}
	tstats := c.tlabs.Stats()
	require.Equal(t, int64(1), tstats["n_created"])
	require.Equal(t, int64(10), c.Stats()["n_tlab"])

	require.True(t, m.RetireTLAB())
	require.False(t, m.RetireTLAB())
	_, err := m.Allocate(nil, 64)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.tlabs.Stats()["n_created"])
}

func TestLargeObject(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	p, err := m.Allocate("large", 64*1024)
	require.NoError(t, err)
	require.Equal(t, api.LargeObject, p.Generation())
	require.Equal(t, heap.PathLarge, p.Header().Path())
	require.True(t, c.store.Contains(api.LargeObject, p.ID()))
	require.Equal(t, int64(0), c.tlabs.Stats()["n_created"])
	require.Equal(t, int64(1), c.Stats()["n_large"])
	require.Equal(t, int64(1), c.Stats()["n_allocs.large"])

	// exactly at threshold is large.
	p, err = m.Allocate("large", 32*1024)
	require.NoError(t, err)
	require.Equal(t, api.LargeObject, p.Generation())
	require.Equal(t, int64(0), c.tlabs.Stats()["n_created"])
}

func TestTLABFallback(t *testing.T) {
	setts := s.Settings{
		"tlab.size":     int64(1024),
		"tlab.maxsize":  int64(1024),
		"tlab.capacity": int64(1024),
	}
	c, m1 := newcoordinator(t, setts)
	defer c.Close()
	m2, err := c.Register()
	require.NoError(t, err)

	p, err := m1.Allocate(nil, 64)
	require.NoError(t, err)
	require.Equal(t, heap.PathTLAB, p.Header().Path())

	// tlab capacity is exhausted by m1.
	p, err = m2.Allocate(nil, 64)
	require.NoError(t, err)
	require.Equal(t, heap.PathDirect, p.Header().Path())
	require.Equal(t, api.Young, p.Generation())

	// larger than tlab, smaller than large object.
	p, err = m1.Allocate(nil, 2000)
	require.NoError(t, err)
	require.Equal(t, heap.PathDirect, p.Header().Path())

	stats := c.Stats()
	require.Equal(t, int64(2), stats["n_tlabfails"])
	require.Equal(t, int64(2), stats["n_direct"])
	require.Equal(t, int64(1), stats["n_tlab"])
}

func TestHeapCapacity(t *testing.T) {
	setts := s.Settings{
		"heap.capacity":         int64(4096),
		"largeobject.threshold": int64(1024),
	}
	c, m := newcoordinator(t, setts)
	defer c.Close()

	p1, err := m.AllocateRoot("p1", 2048)
	require.NoError(t, err)
	_, err = m.AllocateRoot("p2", 2048)
	require.NoError(t, err)

	_, err = m.Allocate("p3", 2048)
	require.True(t, errors.Is(err, api.ErrorOutofMemory))
	require.Equal(t, int64(1), c.Stats()["n_forcedgc"])

	require.True(t, c.RemoveRoot(p1))
	_, err = m.Allocate("p3", 2048)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Stats()["n_forcedgc"])
	require.False(t, c.store.Isregistered(p1.ID()))

	st := c.Statistics()
	require.InDelta(t, 25.0, st.FailureRate, 0.001)
	require.Equal(t, int64(3), st.TotalAllocations)
	require.Equal(t, int64(2048), st.AvgAllocationSize)
}

func TestHeapCapacityTLAB(t *testing.T) {
	setts := s.Settings{"heap.capacity": int64(64 * 1024)}
	c, m := newcoordinator(t, setts)
	defer c.Close()

	n := 0
	for ; n < 4096; n++ {
		p, err := m.AllocateRoot(n, 64)
		if err != nil {
			require.True(t, errors.Is(err, api.ErrorOutofMemory), err.Error())
			break
		}
		require.Equal(t, heap.PathTLAB, p.Header().Path())
	}
	require.Equal(t, 1024, n)
	require.Equal(t, int64(64*1024), c.store.Totalbytes())
	require.Equal(t, int64(1), c.Stats()["n_forcedgc"])
	require.Equal(t, int64(1), c.Stats()["n_failed"])
	c.Validate()
}

func TestRootsAndReachability(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	a, err := m.Allocate("a", 64)
	require.NoError(t, err)
	b, err := m.Allocate("b", 64)
	require.NoError(t, err)
	c.AddRoot(b)

	c.CollectMinor()
	require.False(t, c.store.Isregistered(a.ID()))
	require.True(t, c.store.Isregistered(b.ID()))

	// pair -> (x . y), only pair is rooted.
	x, _ := m.Allocate("x", 64)
	y, _ := m.Allocate("y", 64)
	pair, err := m.AllocateRoot(&cell{car: x.ID(), cdr: y.ID()}, 64)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		c.CollectAll()
	}
	for _, p := range []heap.GcPtr{x, y, pair, b} {
		require.True(t, c.store.Isregistered(p.ID()))
		require.Equal(t, api.MaxGenerations, p.Generation())
	}

	require.True(t, c.RemoveRoot(pair))
	require.False(t, c.RemoveRoot(pair))
	c.CollectMajor(false)
	for _, p := range []heap.GcPtr{x, y, pair} {
		require.False(t, c.store.Isregistered(p.ID()))
	}
	c.Validate()
}

func TestWeakReferences(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	x, err := m.AllocateRoot("x", 64)
	require.NoError(t, err)
	w := c.Downgrade(x)
	require.Equal(t, int64(1), c.DebugInfo().Weaks)

	c.CollectAll()
	p, ok := w.Upgrade()
	require.True(t, ok)
	require.True(t, p.Equal(x))

	c.RemoveRoot(x)
	c.CollectMajor(true)
	_, ok = c.Get(x.ID())
	require.False(t, ok)
	require.Equal(t, int64(0), c.DebugInfo().Weaks)
	p, ok = w.Upgrade()
	require.True(t, ok)
	require.Equal(t, "x", p.Value())

	x, p = heap.NilPtr, heap.NilPtr
	runtime.GC()
	_, ok = w.Upgrade()
	require.False(t, ok)
}

func TestSampling(t *testing.T) {
	c, m := newcoordinator(t, s.Settings{"sampler.rate": int64(1)})
	defer c.Close()

	for i := 0; i < 5; i++ {
		_, err := m.Allocate(i, 64)
		require.NoError(t, err)
	}
	_, err := m.Allocate(nil, 64*1024)
	require.NoError(t, err)

	samples := c.Sampler().Recent(10)
	require.Len(t, samples, 6)
	for _, sample := range samples {
		require.Equal(t, m.ID(), sample.Mutator)
		require.True(t, strings.HasPrefix(sample.Site, "coordinator_test.go:"), sample.Site)
	}
	require.Equal(t, api.LargeObject, samples[5].Generation)
}

func TestClose(t *testing.T) {
	c, m := newcoordinator(t, s.Settings{"housekeep.tick": int64(10)})
	require.NoError(t, c.Close())
	require.Equal(t, api.ErrorClosed, c.Close())

	_, err := c.Register()
	require.Equal(t, api.ErrorClosed, err)
	_, err = m.Allocate(nil, 64)
	require.Equal(t, api.ErrorClosed, err)
}

func TestAllocatorInterface(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	for i := 0; i < 4; i++ {
		_, err := m.Allocate(i, 64)
		require.NoError(t, err)
	}

	var alloc api.Allocator = c
	alloc.CollectMinor()
	require.Equal(t, int64(0), c.store.Count(api.Young))
	alloc.CollectMajor(false)
	alloc.CollectMajor(true)
	alloc.CollectAll()

	require.Equal(t, int64(3), c.collector.Minorcount())
	require.Equal(t, int64(10), c.collector.Majorcount())
	require.Len(t, c.History(-1), 13)
	require.Equal(t, 0, alloc.Cleanup())
	require.Equal(t, int64(4), alloc.Stats()["n_allocs"])
}

func TestCleanup(t *testing.T) {
	c, m := newcoordinator(t, nil)
	defer c.Close()

	_, err := m.Allocate(nil, 64)
	require.NoError(t, err)
	require.Equal(t, 0, c.Cleanup())

	// mutator dropped without unregistering.
	m.finalize()
	require.Equal(t, 1, c.Cleanup())
	require.Equal(t, int64(0), c.DebugInfo().TLABs)
	require.Equal(t, int64(0), c.DebugInfo().Mutators)
}

func TestHousekeeper(t *testing.T) {
	setts := s.Settings{"housekeep.tick": int64(10), "log.stats": true}
	c, m := newcoordinator(t, setts)
	defer c.Close()

	_, err := m.Allocate(nil, 64)
	require.NoError(t, err)
	m.finalize()
	require.Eventually(t, func() bool {
		return c.DebugInfo().TLABs == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentMutators(t *testing.T) {
	setts := s.Settings{
		"nursery.threshold": int64(16 * 1024),
		"gen1.threshold":    int64(32 * 1024),
		"tlab.size":         int64(4096),
	}
	c := New("test", setts)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	rooted := []heap.GcPtr{}
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Register()
			if err != nil {
				t.Errorf("unexpected %v", err)
				return
			}
			defer m.Unregister()
			for i := 0; i < 1000; i++ {
				if i%50 != 0 {
					if _, err := m.Allocate(i, 64); err != nil {
						t.Errorf("unexpected %v", err)
						return
					}
					continue
				}
				p, err := m.AllocateRoot(i, 64)
				if err != nil {
					t.Errorf("unexpected %v", err)
					return
				}
				mu.Lock()
				rooted = append(rooted, p)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	c.CollectAll()
	c.Validate()
	require.Len(t, rooted, 8*20)
	for _, p := range rooted {
		require.True(t, c.store.Isregistered(p.ID()))
	}
	require.Equal(t, int64(8*20), c.DebugInfo().TotalObjects)
	require.Equal(t, int64(8000), c.Stats()["n_allocs"])
	require.True(t, c.collector.Minorcount() > 0)
}

func TestSettings(t *testing.T) {
	badsetts := []s.Settings{
		{"nursery.threshold": int64(0)},
		{"gen2.threshold": int64(-1)},
		{"largeobject.threshold": int64(0)},
		{"heap.capacity": int64(0)},
	}
	for _, setts := range badsetts {
		require.Panics(t, func() { New("test", setts) }, "%v", setts)
	}
}

func BenchmarkAllocate(b *testing.B) {
	c := New("bench", nil)
	defer c.Close()
	m, _ := c.Register()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Allocate(i, 64)
	}
}
