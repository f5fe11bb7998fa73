package sampler

import s "github.com/bnclabs/gosettings"

// Defaultsettings for allocation sampler.
//
// "rate" (int64, default: 1000)
//		Sample one in every `rate` allocations.
//
// "maxsamples" (int64, default: 10000)
//		Number of recent samples to retain, older samples are
//		overwritten.
func Defaultsettings() s.Settings {
	return s.Settings{
		"rate":       int64(1000),
		"maxsamples": int64(10000),
	}
}
