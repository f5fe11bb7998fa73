package gengc

import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

import "github.com/bnclabs/gengc/heap"
import "github.com/bnclabs/gengc/sampler"
import "github.com/bnclabs/gengc/tlab"

// Defaultsettings for coordinator, along with settings for its TLAB
// manager, sampler and collector.
//
// "nursery.threshold" (int64, default: 1MB)
//		Collect young generation when its live bytes exceed this.
//
// "gen1.threshold" (int64, default: 8MB)
//		Collect generation 1 when its live bytes exceed this.
//
// "gen2.threshold" (int64, default: 32MB)
//		Collect generation 2 when its live bytes exceed this.
//
// "maxpromotions" (int64, default: 1000)
//		Maximum survivors promoted in a single collection.
//
// "history.size" (int64, default: 100)
//		Number of recent collection cycles to remember.
//
// "heap.capacity" (int64, default: 1/2 of free RAM)
//		Direct and large allocations beyond this force a full
//		collection, and fail if the heap is still full.
//
// "largeobject.threshold" (int64, default: 32KB)
//		Objects of this size and above are allocated in the large
//		object class, bypassing TLAB.
//
// "tlab.size" (int64, default: 32KB)
//		Default TLAB size.
//
// "tlab.maxsize" (int64, default: 128KB)
//		Maximum TLAB size.
//
// "tlab.adaptive" (bool, default: true)
//		Size new TLABs from the utilization of retired ones.
//
// "tlab.capacity" (int64, default: 1/8 of free RAM)
//		Total bytes held by live TLABs.
//
// "sampler.rate" (int64, default: 1000)
//		Sample one in every `rate` allocations.
//
// "sampler.maxsamples" (int64, default: 10000)
//		Number of recent samples to retain.
//
// "housekeep.tick" (int64, default: 0)
//		Interval, in milliseconds, to clean up TLABs of exited
//		mutators. Zero disables the housekeeper.
//
// "log.stats" (bool, default: false)
//		Log statistics on every housekeeper tick and on Close.
func Defaultsettings() s.Settings {
	_, _, free := getsysmem()
	heapcapacity, tlabcapacity := int64(free/2), int64(free/8)
	if heapcapacity < 64*1024*1024 {
		heapcapacity = 64 * 1024 * 1024
	}
	if tlabcapacity < 16*1024*1024 {
		tlabcapacity = 16 * 1024 * 1024
	}
	setts := s.Settings{
		"nursery.threshold":     int64(1024 * 1024),
		"gen1.threshold":        int64(8 * 1024 * 1024),
		"gen2.threshold":        int64(32 * 1024 * 1024),
		"heap.capacity":         heapcapacity,
		"largeobject.threshold": int64(32 * 1024),
		"housekeep.tick":        int64(0),
		"log.stats":             false,
	}
	tlabsetts := tlab.Defaultsettings()
	tlabsetts["capacity"] = tlabcapacity
	samplesetts := sampler.Defaultsettings()
	setts = setts.Mixin(
		heap.Defaultsettings(),
		tlabsetts.AddPrefix("tlab."),
		samplesetts.AddPrefix("sampler."),
	)
	return setts
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
