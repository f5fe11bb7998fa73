package main

import "strconv"
import "strings"

import s "github.com/bnclabs/gosettings"
import "github.com/spf13/pflag"
import "github.com/bnclabs/gengc"

var heapopts struct {
	nursery   int64
	gen1      int64
	gen2      int64
	capacity  int64
	large     int64
	tlabsize  int64
	tlabmax   int64
	adaptive  bool
	samplerat int64
}

func heapflags(f *pflag.FlagSet) {
	f.Int64Var(&heapopts.nursery, "nursery", 1024*1024,
		"young generation threshold in bytes")
	f.Int64Var(&heapopts.gen1, "gen1", 8*1024*1024,
		"generation 1 threshold in bytes")
	f.Int64Var(&heapopts.gen2, "gen2", 32*1024*1024,
		"generation 2 threshold in bytes")
	f.Int64Var(&heapopts.capacity, "capacity", 0,
		"heap capacity in bytes, 0 picks default from free RAM")
	f.Int64Var(&heapopts.large, "large", 32*1024,
		"large object threshold in bytes")
	f.Int64Var(&heapopts.tlabsize, "tlab", 32*1024,
		"default tlab size in bytes")
	f.Int64Var(&heapopts.tlabmax, "tlabmax", 128*1024,
		"maximum tlab size in bytes")
	f.BoolVar(&heapopts.adaptive, "adaptive", true,
		"size tlabs adaptively")
	f.Int64Var(&heapopts.samplerat, "samplerate", 1000,
		"sample one in every n allocations")
}

func heapsettings() s.Settings {
	setts := gengc.Defaultsettings()
	setts["nursery.threshold"] = heapopts.nursery
	setts["gen1.threshold"] = heapopts.gen1
	setts["gen2.threshold"] = heapopts.gen2
	setts["largeobject.threshold"] = heapopts.large
	setts["tlab.size"] = heapopts.tlabsize
	setts["tlab.maxsize"] = heapopts.tlabmax
	setts["tlab.adaptive"] = heapopts.adaptive
	setts["sampler.rate"] = heapopts.samplerat
	setts["log.stats"] = rootopts.logstats
	if heapopts.capacity > 0 {
		setts["heap.capacity"] = heapopts.capacity
	}
	return setts
}

// parse "min,max" into a pair of sizes.
func parserange(arg string, dflt [2]int64) [2]int64 {
	if arg == "" {
		return dflt
	}
	for i, part := range strings.Split(arg, ",") {
		if i > 1 {
			break
		}
		n, _ := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		dflt[i] = n
	}
	return dflt
}
