package gengc

import "sync/atomic"

import "github.com/bnclabs/golog"
import "github.com/bnclabs/gengc/heap"
import "github.com/bnclabs/gengc/sampler"
import "github.com/bnclabs/gengc/tlab"

var logok = int64(0)

// LogComponents enable logging. By default logging is disabled,
// if applications want log information for gengc components
// call this function with "self" or "all" or "gengc" as argument.
// Use "all" to enable logging for sub packages as well.
func LogComponents(components ...string) {
	for _, comp := range components {
		switch comp {
		case "gengc", "self":
			atomic.StoreInt64(&logok, 1)
		case "all":
			atomic.StoreInt64(&logok, 1)
			tlab.LogComponents("all")
			sampler.LogComponents("all")
			heap.LogComponents("all")
		case "tlab":
			tlab.LogComponents("tlab")
		case "sampler":
			sampler.LogComponents("sampler")
		case "heap":
			heap.LogComponents("heap")
		}
	}
}

func debugf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Debugf(format, v...)
	}
}

func errorf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Errorf(format, v...)
	}
}

func fatalf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Fatalf(format, v...)
	}
}

func infof(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Infof(format, v...)
	}
}

func tracef(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Tracef(format, v...)
	}
}

func verbosef(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Verbosef(format, v...)
	}
}

func warnf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Warnf(format, v...)
	}
}
