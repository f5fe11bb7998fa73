package lib

import "fmt"
import "sort"
import "strconv"
import "strings"

// HistogramInt64 bucket samples into fixed width bins between
// [from, till). Samples below `from` go into the underflow bin and
// samples at or above `till` go into the overflow bin.
type HistogramInt64 struct {
	AverageInt64
	from  int64
	till  int64
	width int64
	bins  []int64 // bins[0] underflow, bins[len-1] overflow
}

// NewhistorgramInt64 return a new histogram, from and till are rounded
// down to a multiple of width.
func NewhistorgramInt64(from, till, width int64) *HistogramInt64 {
	if width <= 0 {
		panic(fmt.Errorf("histogram width %v should be > 0", width))
	}
	from, till = (from/width)*width, (till/width)*width
	if till < from {
		panic(fmt.Errorf("histogram till %v < from %v", till, from))
	}
	nbins := ((till - from) / width) + 2
	return &HistogramInt64{
		from: from, till: till, width: width, bins: make([]int64, nbins),
	}
}

// Add a sample to the histogram.
func (h *HistogramInt64) Add(sample int64) {
	h.AverageInt64.Add(sample)
	h.bins[h.binof(sample)]++
}

func (h *HistogramInt64) binof(sample int64) int {
	switch {
	case sample < h.from:
		return 0
	case sample >= h.till:
		return len(h.bins) - 1
	}
	return int((sample-h.from)/h.width) + 1
}

// Percentile return the upper bound of the bin where cumulative count
// crosses p percent of samples. For samples landing in the overflow
// bin Max() is returned.
func (h *HistogramInt64) Percentile(p float64) int64 {
	if h.n == 0 {
		return 0
	}
	target := int64(float64(h.n) * p / 100)
	cumm := int64(0)
	for i, count := range h.bins {
		if cumm += count; cumm < target || count == 0 {
			continue
		}
		switch i {
		case 0:
			return h.from
		case len(h.bins) - 1:
			return h.Max()
		}
		return h.from + int64(i)*h.width
	}
	return h.Max()
}

// Reset forget all samples, bins are retained.
func (h *HistogramInt64) Reset() {
	h.AverageInt64.Reset()
	for i := range h.bins {
		h.bins[i] = 0
	}
}

// Clone copies the histogram.
func (h *HistogramInt64) Clone() *HistogramInt64 {
	newh := *h
	newh.bins = append([]int64(nil), h.bins...)
	return &newh
}

// Stats return count per non-empty bin, keyed by the bin's lower
// bound. Underflow bin is keyed as "-" and overflow as "+".
func (h *HistogramInt64) Stats() map[string]int64 {
	m := make(map[string]int64)
	for i, count := range h.bins {
		if count == 0 {
			continue
		}
		switch i {
		case 0:
			m["-"] = count
		case len(h.bins) - 1:
			m["+"] = count
		default:
			lower := h.from + int64(i-1)*h.width
			m[strconv.Itoa(int(lower))] = count
		}
	}
	return m
}

// Fullstats include summary statistics along with bins.
func (h *HistogramInt64) Fullstats() map[string]interface{} {
	stats := h.AverageInt64.Stats()
	stats["histogram"] = h.Stats()
	return stats
}

// Logstring return Fullstats as a loggable JSON like string, keys in
// sorted order.
func (h *HistogramInt64) Logstring() string {
	ss := []string{}
	summary := h.AverageInt64.Stats()
	keys := make([]string, 0, len(summary))
	for key := range summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ss = append(ss, fmt.Sprintf("%q: %v", key, summary[key]))
	}

	bins := h.Stats()
	lowers := []int{}
	for key := range bins {
		if n, err := strconv.Atoi(key); err == nil {
			lowers = append(lowers, n)
		}
	}
	sort.Ints(lowers)
	hs := []string{}
	if count, ok := bins["-"]; ok {
		hs = append(hs, fmt.Sprintf("%q: %v", "-", count))
	}
	for _, lower := range lowers {
		key := strconv.Itoa(lower)
		hs = append(hs, fmt.Sprintf("%q: %v", key, bins[key]))
	}
	if count, ok := bins["+"]; ok {
		hs = append(hs, fmt.Sprintf("%q: %v", "+", count))
	}
	ss = append(ss, fmt.Sprintf(`"histogram": {%v}`, strings.Join(hs, ",")))
	return "{" + strings.Join(ss, ",") + "}"
}
