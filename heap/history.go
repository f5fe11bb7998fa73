package heap

import "fmt"
import "time"

import "github.com/bnclabs/gengc/api"

// CycleStats describe a single collection cycle.
type CycleStats struct {
	Epoch      uint64
	Generation api.GenerationID
	Before     int64 // objects in generation before collection
	After      int64 // objects left in generation after collection
	Freed      int64
	Promoted   int64
	FreedBytes int64
	LiveBytes  int64 // bytes live across the heap after collection
	Duration   time.Duration
	Timestamp  time.Time
}

func (cycle CycleStats) String() string {
	fmsg := "cycle<%v %v: %v->%v objects, freed %v (%v bytes), promoted %v in %v>"
	return fmt.Sprintf(fmsg, cycle.Epoch, cycle.Generation, cycle.Before,
		cycle.After, cycle.Freed, cycle.FreedBytes, cycle.Promoted,
		cycle.Duration)
}

// bounded ring of recent cycles.
type history struct {
	cycles []CycleStats
	head   int
	count  int
}

func newhistory(size int64) *history {
	return &history{cycles: make([]CycleStats, size)}
}

func (h *history) add(cycle CycleStats) {
	h.cycles[h.head] = cycle
	h.head = (h.head + 1) % len(h.cycles)
	if h.count < len(h.cycles) {
		h.count++
	}
}

// recent return upto limit cycles, oldest first, all if limit < 0.
func (h *history) recent(limit int) []CycleStats {
	n := h.count
	if limit >= 0 && limit < n {
		n = limit
	}
	cycles := make([]CycleStats, 0, n)
	start := (h.head - n + len(h.cycles)) % len(h.cycles)
	for i := 0; i < n; i++ {
		cycles = append(cycles, h.cycles[(start+i)%len(h.cycles)])
	}
	return cycles
}
