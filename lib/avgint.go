package lib

import "math"

// AverageInt64 accumulate samples and compute running mean, variance
// and spread.
type AverageInt64 struct {
	n      int64
	sum    int64
	sumsq  float64
	minval int64
	maxval int64
}

// Add a sample.
func (av *AverageInt64) Add(sample int64) {
	if av.n == 0 {
		av.minval, av.maxval = sample, sample
	} else if sample < av.minval {
		av.minval = sample
	} else if sample > av.maxval {
		av.maxval = sample
	}
	av.n++
	av.sum += sample
	av.sumsq += float64(sample) * float64(sample)
}

// Min return the smallest sample, 0 if there are no samples.
func (av *AverageInt64) Min() int64 {
	return av.minval
}

// Max return the largest sample, 0 if there are no samples.
func (av *AverageInt64) Max() int64 {
	return av.maxval
}

// Samples return the number of samples added so far.
func (av *AverageInt64) Samples() int64 {
	return av.n
}

// Sum of all samples.
func (av *AverageInt64) Sum() int64 {
	return av.sum
}

// Mean return integer mean of samples.
func (av *AverageInt64) Mean() int64 {
	if av.n == 0 {
		return 0
	}
	return av.sum / av.n
}

// Meanf return mean of samples without truncation.
func (av *AverageInt64) Meanf() float64 {
	if av.n == 0 {
		return 0
	}
	return float64(av.sum) / float64(av.n)
}

// Variance of samples from their mean.
func (av *AverageInt64) Variance() int64 {
	if av.n == 0 {
		return 0
	}
	mean := float64(av.Mean())
	return int64((av.sumsq / float64(av.n)) - (mean * mean))
}

// SD is the standard deviation.
func (av *AverageInt64) SD() int64 {
	return int64(math.Sqrt(float64(av.Variance())))
}

// Reset forget all samples.
func (av *AverageInt64) Reset() {
	*av = AverageInt64{}
}

// Clone return a copy.
func (av *AverageInt64) Clone() *AverageInt64 {
	newav := *av
	return &newav
}

// Stats return a map of statistics.
func (av *AverageInt64) Stats() map[string]interface{} {
	return map[string]interface{}{
		"samples":     av.Samples(),
		"min":         av.Min(),
		"max":         av.Max(),
		"mean":        av.Mean(),
		"variance":    av.Variance(),
		"stddeviance": av.SD(),
	}
}
