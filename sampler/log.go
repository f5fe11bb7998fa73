package sampler

import "sync/atomic"

import "github.com/bnclabs/golog"

var logok = int64(0)

// LogComponents enable logging. By default logging is disabled,
// if applications want log information for sampler components
// call this function with "self" or "all" or "sampler" as argument.
func LogComponents(components ...string) {
	for _, comp := range components {
		switch comp {
		case "sampler", "self", "all":
			atomic.StoreInt64(&logok, 1)
		}
	}
}

func infof(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Infof(format, v...)
	}
}
