package heap

import "sync"
import "runtime"
import "testing"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/gengc/api"
import "github.com/stretchr/testify/require"

func newcollector(setts s.Settings) (*Store, *Collector) {
	store := NewStore("test")
	return store, NewCollector("test", store, setts)
}

func TestRootedSurvive(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 64, api.Young, PathDirect, nil)
	store.AddRoot(x.ID())

	prev := x.Generation()
	for i := 0; i < 5; i++ {
		c.CollectAll()
		require.True(t, store.Isregistered(x.ID()))
		require.True(t, x.Generation() >= prev)
		prev = x.Generation()
	}
	require.Equal(t, api.MaxGenerations, x.Generation())
	require.True(t, store.Contains(api.MaxGenerations, x.ID()))
	store.Validate()
}

func TestPromotion(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 64, api.Young, PathDirect, nil)
	store.AddRoot(x.ID())

	for gen := api.GenerationID(1); gen <= api.MaxGenerations; gen++ {
		c.CollectGeneration(x.Generation())
		require.Equal(t, gen, x.Generation())
		require.Equal(t, int64(64), store.Livebytes(gen))
	}
	cycle := c.CollectGeneration(api.MaxGenerations)
	require.Equal(t, api.MaxGenerations, x.Generation())
	require.Equal(t, int64(0), cycle.Promoted)
	require.Equal(t, int64(1), cycle.After)
}

func TestUnreferencedCollected(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 64, api.Young, PathDirect, nil)
	id := x.ID()

	cycle := c.CollectMinor()
	require.False(t, store.Isregistered(id))
	require.Nil(t, store.Lookup(id))
	require.Equal(t, int64(1), cycle.Freed)
	require.Equal(t, int64(64), cycle.FreedBytes)
	require.Equal(t, int64(0), store.Livebytes(api.Young))
	// header stays valid for holders of GcPtr.
	require.Equal(t, "x", x.Value().(*node).name)

	// slot is reused with a new stamp.
	y := store.Allocate(nil, 32, api.Young, PathDirect, nil)
	require.Equal(t, id.Slot(), y.ID().Slot())
	require.NotEqual(t, id, y.ID())
	require.Nil(t, store.Lookup(id))
	store.Validate()
}

func TestRootedKeepsReachable(t *testing.T) {
	store, c := newcollector(nil)
	a := store.Allocate(newnode("a"), 64, api.Young, PathDirect, nil)
	b := store.Allocate(newnode("b"), 64, api.Young, PathDirect, nil)
	store.AddRoot(b.ID())

	c.CollectMinor()
	require.False(t, store.Isregistered(a.ID()))
	require.True(t, store.Isregistered(b.ID()))
	require.Equal(t, api.GenerationID(1), b.Generation())

	// b -> d -> e survive through b.
	e := store.Allocate(newnode("e"), 64, api.Young, PathDirect, nil)
	d := store.Allocate(newnode("d", e), 64, api.Young, PathDirect, nil)
	b.Value().(*node).link(d)
	c.CollectAll()
	require.True(t, store.Isregistered(d.ID()))
	require.True(t, store.Isregistered(e.ID()))
	store.Validate()
}

func TestWeakUpgrade(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 64, api.Young, PathDirect, nil)
	store.AddRoot(x.ID())
	w := store.Downgrade(x)

	c.CollectMinor()
	p, ok := w.Upgrade()
	require.True(t, ok)
	require.True(t, p.Equal(x))

	store.RemoveRoot(x.ID())
	c.CollectAll()
	require.False(t, store.Isregistered(x.ID()))
	require.Equal(t, int64(0), store.Weakcount())

	// reclaimed, but x is still held.
	p, ok = w.Upgrade()
	require.True(t, ok)
	require.True(t, p.Equal(x))

	x, p = NilPtr, NilPtr
	runtime.GC()
	p, ok = w.Upgrade()
	require.False(t, ok)
	require.True(t, p.Isnil())
}

func TestWeakUnrootedHolder(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 64, api.Young, PathDirect, nil)
	w := store.Downgrade(x)

	cycle := c.CollectMinor()
	require.Equal(t, int64(1), cycle.Freed)
	require.False(t, store.Isregistered(x.ID()))
	_, ok := store.Get(x.ID())
	require.False(t, ok)

	p, ok := w.Upgrade()
	require.True(t, ok)
	require.True(t, p.Equal(x))
	require.Equal(t, "x", p.Value().(*node).name)
	require.Equal(t, x.ID(), w.ID())
}

func TestCycles(t *testing.T) {
	store, c := newcollector(nil)
	an, bn := newnode("a"), newnode("b")
	a := store.Allocate(an, 64, api.Young, PathDirect, nil)
	b := store.Allocate(bn, 64, api.Young, PathDirect, nil)
	an.link(b)
	bn.link(a)
	an.link(a)

	store.AddRoot(a.ID())
	c.CollectMinor()
	require.True(t, store.Isregistered(a.ID()))
	require.True(t, store.Isregistered(b.ID()))

	store.RemoveRoot(a.ID())
	c.CollectAll()
	require.False(t, store.Isregistered(a.ID()))
	require.False(t, store.Isregistered(b.ID()))
	require.Equal(t, int64(0), store.Totalobjects())
}

func TestOlderKeepsYoung(t *testing.T) {
	store, c := newcollector(nil)
	on := newnode("old")
	o := store.Allocate(on, 64, api.Young, PathDirect, nil)
	store.AddRoot(o.ID())
	c.CollectMinor()
	require.Equal(t, api.GenerationID(1), o.Generation())

	// o is no longer rooted but it is older than young.
	store.RemoveRoot(o.ID())
	y := store.Allocate(newnode("young"), 64, api.Young, PathDirect, nil)
	on.link(y)
	c.CollectMinor()
	require.True(t, store.Isregistered(y.ID()))
	require.Equal(t, api.GenerationID(1), y.Generation())

	// collecting gen1 reclaims both.
	c.CollectAll()
	require.False(t, store.Isregistered(o.ID()))
	require.False(t, store.Isregistered(y.ID()))
}

func TestLargeObjects(t *testing.T) {
	store, c := newcollector(nil)
	x := store.Allocate(newnode("x"), 1<<20, api.LargeObject, PathLarge, nil)
	y := store.Allocate(newnode("y"), 1<<20, api.LargeObject, PathLarge, nil)
	z := store.Allocate(newnode("z"), 64, api.Young, PathDirect, nil)
	x.Value().(*node).link(z)
	store.AddRoot(x.ID())

	c.CollectAll()
	require.Equal(t, api.LargeObject, x.Generation())
	require.False(t, store.Isregistered(y.ID()))
	// large objects are scanned as older than every generation.
	require.True(t, store.Isregistered(z.ID()))
	require.Equal(t, int64(1<<20), store.Livebytes(api.LargeObject))

	cycles := c.CollectMajor(false)
	require.Len(t, cycles, 2)
	require.Equal(t, api.MaxGenerations, cycles[0].Generation)
	require.Equal(t, api.LargeObject, cycles[1].Generation)
	require.Len(t, c.CollectMajor(true), api.NumGenerations)
}

func TestMaxpromotions(t *testing.T) {
	store, c := newcollector(s.Settings{"maxpromotions": int64(2)})
	for i := 0; i < 5; i++ {
		x := store.Allocate(nil, 64, api.Young, PathDirect, nil)
		store.AddRoot(x.ID())
	}
	cycle := c.CollectMinor()
	require.Equal(t, int64(2), cycle.Promoted)
	require.Equal(t, int64(3), store.Count(api.Young))
	require.Equal(t, int64(2), store.Count(1))
	store.Validate()
}

func TestDeepChain(t *testing.T) {
	store, c := newcollector(nil)
	n := 100000
	head := store.Allocate(newnode("0"), 8, api.Young, PathDirect, nil)
	prev := head
	for i := 1; i < n; i++ {
		next := store.Allocate(newnode(""), 8, api.Young, PathDirect, nil)
		prev.Value().(*node).link(next)
		prev = next
	}
	store.AddRoot(head.ID())
	cycle := c.CollectMinor()
	require.Equal(t, int64(0), cycle.Freed)
	require.Equal(t, int64(n), store.Totalobjects())
}

func TestCollectIfAbove(t *testing.T) {
	store, c := newcollector(nil)
	store.Allocate(nil, 64, api.Young, PathDirect, nil)
	require.False(t, c.CollectIfAbove(api.Young, 64))
	store.Allocate(nil, 64, api.Young, PathDirect, nil)
	require.True(t, c.CollectIfAbove(api.Young, 64))
	require.Equal(t, int64(1), c.Minorcount())
	require.Equal(t, int64(0), c.Majorcount())
	require.Equal(t, int64(0), store.Livebytes(api.Young))
}

func TestHistory(t *testing.T) {
	store, c := newcollector(s.Settings{"history.size": int64(3)})
	for i := 0; i < 5; i++ {
		store.Allocate(nil, 64, api.Young, PathDirect, nil)
		c.CollectMinor()
	}
	cycles := c.History(-1)
	require.Len(t, cycles, 3)
	for i, cycle := range cycles {
		require.Equal(t, uint64(i+3), cycle.Epoch)
		require.Equal(t, int64(1), cycle.Freed)
	}
	require.Len(t, c.History(1), 1)
	require.Equal(t, uint64(5), c.History(1)[0].Epoch)

	stats := c.Stats()
	require.Equal(t, int64(5), stats["n_minor"])
	require.Equal(t, int64(5), stats["n_freed"])
	require.Equal(t, int64(5), stats["n_cycles"])
	minor, major := c.Pauses()
	require.True(t, minor >= 0)
	require.Equal(t, int64(0), int64(major))
	c.Log()
}

func TestCollectorSettings(t *testing.T) {
	require.Panics(t, func() {
		newcollector(s.Settings{"history.size": int64(0)})
	})
	require.Panics(t, func() {
		newcollector(s.Settings{"maxpromotions": int64(-1)})
	})
	_, c := newcollector(nil)
	require.Panics(t, func() { c.CollectGeneration(api.LargeObject + 1) })
}

func TestConcurrentCollect(t *testing.T) {
	store, c := newcollector(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	rooted := []GcPtr{}

	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if i%100 != 0 {
					store.Allocate(newnode(""), 64, api.Young, PathDirect, nil)
					continue
				}
				x := store.AllocateRoot(newnode(""), 64, api.Young, PathDirect, nil)
				mu.Lock()
				rooted = append(rooted, x)
				mu.Unlock()
			}
		}(n)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			c.CollectMinor()
		}
	}()
	wg.Wait()
	<-done

	c.CollectAll()
	c.Validate()
	require.Len(t, rooted, 80)
	for _, x := range rooted {
		require.True(t, store.Isregistered(x.ID()))
	}
	require.Equal(t, int64(80), store.Totalobjects())
}

func BenchmarkCollectMinor(b *testing.B) {
	store, c := newcollector(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 100; j++ {
			store.Allocate(nil, 64, api.Young, PathDirect, nil)
		}
		c.CollectMinor()
	}
}
