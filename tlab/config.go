package tlab

import "fmt"

import s "github.com/bnclabs/gosettings"

// MinTlabsize adaptive sizing never shrinks a buffer below this.
const MinTlabsize = int64(4 * 1024)

// Defaultsettings for tlab Manager.
//
// "size" (int64, default: 32KB)
//		Default size of a new buffer.
//
// "maxsize" (int64, default: 128KB)
//		Maximum size of a buffer, adaptive sizing is capped by this.
//
// "adaptive" (bool, default: true)
//		Double the default size when retired buffers are well used
//		(> 80%), halve it when they are poorly used (< 40%).
//
// "capacity" (int64, default: 1GB)
//		Total bytes that can be held by live buffers. Creating a
//		buffer beyond this fails.
func Defaultsettings() s.Settings {
	return s.Settings{
		"size":     int64(32 * 1024),
		"maxsize":  int64(128 * 1024),
		"adaptive": true,
		"capacity": int64(1024 * 1024 * 1024),
	}
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
