package heap

import s "github.com/bnclabs/gosettings"

// Defaultsettings for collector.
//
// "maxpromotions" (int64, default: 1000)
//		Maximum number of survivors promoted to the next generation in
//		a single collection, remaining survivors stay back.
//
// "history.size" (int64, default: 100)
//		Number of recent collection cycles to remember.
func Defaultsettings() s.Settings {
	return s.Settings{
		"maxpromotions": int64(1000),
		"history.size":  int64(100),
	}
}
