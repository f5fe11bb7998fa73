package api

// Allocator interface exposed to the host runtime, typically the
// evaluator. Allocation itself happens through a registered mutator,
// refer to gengc.Mutator.
type Allocator interface {
	// CollectMinor collect the young generation.
	CollectMinor()

	// CollectMajor collect the oldest generation along with large
	// objects. If full is true, collect every generation.
	CollectMajor(full bool)

	// CollectAll collect every generation, youngest first.
	CollectAll()

	// Cleanup drop book-keeping for mutators that have exited.
	Cleanup() int

	// Stats return allocator and collector statistics.
	Stats() map[string]interface{}
}
