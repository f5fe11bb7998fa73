package tlab

import "fmt"
import "sync"
import "errors"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"
import "github.com/bnclabs/gengc/api"
import "github.com/bnclabs/gengc/lib"

// ErrorOversize request cannot be served from a buffer of maximum size.
var ErrorOversize = errors.New("tlab.oversize")

// Manager maintains one active Tlab per mutator.
type Manager struct {
	// 64-bit aligned statistics
	n_created    int64
	n_retired    int64
	n_cleaned    int64
	n_failed     int64
	n_tlabbytes  int64 // bytes allocated as buffers, cumulative
	n_wastebytes int64 // unused bytes in retired buffers, cumulative
	livebytes    int64 // bytes held by buffers in tlabs map

	name      string
	mu        sync.RWMutex
	tlabs     map[uint64]*Tlab // mutator -> tlab
	nextid    uint64
	uzavg     lib.AverageInt64 // utilization of retired buffers, x100
	logprefix string

	// settings
	defaultsize int64
	maxsize     int64
	adaptive    bool
	capacity    int64
}

// NewManager create a new buffer manager, refer to Defaultsettings()
// for configurable parameters.
func NewManager(name string, setts s.Settings) *Manager {
	m := &Manager{
		name:      name,
		tlabs:     make(map[uint64]*Tlab),
		logprefix: fmt.Sprintf("TLAB [%s]", name),
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	m.readsettings(setts)
	infof("%v started with default size %v, max size %v\n",
		m.logprefix, humanize.Bytes(uint64(m.defaultsize)),
		humanize.Bytes(uint64(m.maxsize)))
	return m
}

func (m *Manager) readsettings(setts s.Settings) {
	m.defaultsize = setts.Int64("size")
	m.maxsize = setts.Int64("maxsize")
	m.adaptive = setts.Bool("adaptive")
	m.capacity = setts.Int64("capacity")
	if m.defaultsize <= 0 {
		panicerr("%v invalid size %v", m.logprefix, m.defaultsize)
	} else if m.maxsize < m.defaultsize {
		fmsg := "%v maxsize %v < size %v"
		panicerr(fmsg, m.logprefix, m.maxsize, m.defaultsize)
	} else if m.capacity < m.defaultsize {
		fmsg := "%v capacity %v < size %v"
		panicerr(fmsg, m.logprefix, m.capacity, m.defaultsize)
	}
}

// Get return an active buffer for owner that can fit need bytes,
// creating a new buffer if there is none or if the current one is
// retired or full. Replaced buffer is retired.
func (m *Manager) Get(owner uint64, need int64) (*Tlab, error) {
	m.mu.RLock()
	tl, ok := m.tlabs[owner]
	m.mu.RUnlock()
	if ok && tl.Fits(need, api.Alignment) {
		return tl, nil
	}
	return m.refill(owner, need)
}

func (m *Manager) refill(owner uint64, need int64) (*Tlab, error) {
	if need > m.maxsize {
		atomic.AddInt64(&m.n_failed, 1)
		return nil, ErrorOversize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tlabs[owner]
	if ok && old.Fits(need, api.Alignment) {
		return old, nil
	}

	size := m.nextsize()
	if need > size {
		size = ((need + api.Alignment - 1) / api.Alignment) * api.Alignment
	}
	live := atomic.LoadInt64(&m.livebytes)
	if ok {
		live -= old.Size()
	}
	if live+size > m.capacity {
		atomic.AddInt64(&m.n_failed, 1)
		fmsg := "%v owner %v: %v live + %v exceeds capacity %v"
		debugf(fmsg, m.logprefix, owner, live, size, m.capacity)
		return nil, api.ErrorOutofMemory
	}

	if ok {
		old.Retire()
		m.recordretire(old)
	}
	m.nextid++
	tl := newtlab(m.nextid, owner, size)
	m.tlabs[owner] = tl
	atomic.AddInt64(&m.n_created, 1)
	atomic.AddInt64(&m.n_tlabbytes, size)
	atomic.AddInt64(&m.livebytes, size)
	tracef("%v new %v\n", m.logprefix, tl)
	return tl, nil
}

// must be called with write lock.
func (m *Manager) nextsize() int64 {
	size := m.defaultsize
	if m.adaptive && m.uzavg.Samples() > 0 {
		avg := m.uzavg.Meanf() / 100
		if avg > 80 {
			size = m.defaultsize * 2
		} else if avg < 40 {
			if size = m.defaultsize / 2; size < MinTlabsize {
				size = MinTlabsize
			}
		}
	}
	if size > m.maxsize {
		size = m.maxsize
	}
	return size
}

// must be called with write lock, after tl is removed or replaced
// in tlabs map.
func (m *Manager) recordretire(tl *Tlab) {
	atomic.AddInt64(&m.n_retired, 1)
	atomic.AddInt64(&m.livebytes, -tl.Size())
	if waste := tl.Size() - tl.Used(); waste > 0 {
		atomic.AddInt64(&m.n_wastebytes, waste)
	}
	m.uzavg.Add(int64(tl.Utilization() * 100))
}

// Lookup return the buffer currently held for owner, nil if none.
func (m *Manager) Lookup(owner uint64) *Tlab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tlabs[owner]
}

// Retire owner's buffer and forget it. Return false if owner has no
// buffer.
func (m *Manager) Retire(owner uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tl, ok := m.tlabs[owner]
	if !ok {
		return false
	}
	delete(m.tlabs, owner)
	tl.Retire()
	m.recordretire(tl)
	tracef("%v retired %v\n", m.logprefix, tl)
	return true
}

// CleanupDeadThreads forget buffers that were retired without going
// through the manager, typically by a mutator that exited without
// unregistering. Return the number of buffers removed.
func (m *Manager) CleanupDeadThreads() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for owner, tl := range m.tlabs {
		if tl.Isactive() {
			continue
		}
		delete(m.tlabs, owner)
		m.recordretire(tl)
		count++
	}
	if count > 0 {
		atomic.AddInt64(&m.n_cleaned, int64(count))
		debugf("%v cleaned up %v dead buffers\n", m.logprefix, count)
	}
	return count
}

// Count return number of buffers held by the manager.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tlabs)
}

// AverageUtilization of retired buffers, as percentage.
func (m *Manager) AverageUtilization() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uzavg.Meanf() / 100
}

// WastePercentage return unused bytes of retired buffers as percentage
// of all bytes handed out as buffers.
func (m *Manager) WastePercentage() float64 {
	total := atomic.LoadInt64(&m.n_tlabbytes)
	if total == 0 {
		return 0
	}
	waste := atomic.LoadInt64(&m.n_wastebytes)
	return (float64(waste) / float64(total)) * 100
}

// Stats return buffer statistics.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	count := len(m.tlabs)
	uz := m.uzavg.Meanf() / 100
	m.mu.RUnlock()

	return map[string]interface{}{
		"n_active":       int64(count),
		"n_created":      atomic.LoadInt64(&m.n_created),
		"n_retired":      atomic.LoadInt64(&m.n_retired),
		"n_cleaned":      atomic.LoadInt64(&m.n_cleaned),
		"n_failed":       atomic.LoadInt64(&m.n_failed),
		"tlabbytes":      atomic.LoadInt64(&m.n_tlabbytes),
		"wastebytes":     atomic.LoadInt64(&m.n_wastebytes),
		"livebytes":      atomic.LoadInt64(&m.livebytes),
		"avgutilization": uz,
		"wastepercent":   m.WastePercentage(),
	}
}

// Log vital information.
func (m *Manager) Log() {
	stats := m.Stats()
	a, b, c := stats["n_active"], stats["n_created"], stats["n_retired"]
	infof("%v tlabs: %10d(act) %10d(cre) %10d(ret)\n", m.logprefix, a, b, c)
	tbytes := humanize.Bytes(uint64(stats["tlabbytes"].(int64)))
	wbytes := humanize.Bytes(uint64(stats["wastebytes"].(int64)))
	lbytes := humanize.Bytes(uint64(stats["livebytes"].(int64)))
	fmsg := "%v bytes: %v(tot) %v(waste) %v(live)\n"
	infof(fmsg, m.logprefix, tbytes, wbytes, lbytes)
	fmsg = "%v utilz: %2.2f%% waste: %2.2f%%\n"
	infof(fmsg, m.logprefix, stats["avgutilization"], stats["wastepercent"])
}
