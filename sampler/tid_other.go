//go:build !linux

package sampler

func gettid() int {
	return 0
}
