// Package gengc implement a generational, tracing garbage collected
// heap with thread local allocation buffers.
//
// Host runtimes create a Coordinator and a Mutator per allocating
// goroutine. Small objects are carved out of the mutator's TLAB and
// born in the young generation, objects at or above the large object
// threshold bypass TLABs and live in the large object class. Live
// bytes in young, gen1 and gen2 are watched after every allocation and
// the first generation exceeding its threshold is collected.
//
// Payloads hold references to other objects by api.ObjectID and
// expose them by implementing api.Traceable. Objects survive a
// collection only if they are rooted or reachable from a root, or
// referenced from an older generation. GcPtr handles do not keep
// objects alive, WeakGcPtr handles never do.
//
// Sub packages:
//
//   api     : ObjectID, GenerationID, errors and the Traceable callback.
//   tlab    : thread local allocation buffers and their manager.
//   sampler : allocation sampling.
//   heap    : generation store and collector.
//   lib     : running averages and histograms.
package gengc
