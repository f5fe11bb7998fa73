package api

import "errors"
import "strconv"

// ErrorOutofMemory allocation cannot be satisfied within configured
// capacity, even after a full collection.
var ErrorOutofMemory = errors.New("gengc.outofmemory")

// ErrorInvalidSize allocation size is zero or negative.
var ErrorInvalidSize = errors.New("gengc.invalidsize")

// ErrorUnregistered mutator has unregistered and cannot allocate.
var ErrorUnregistered = errors.New("gengc.unregistered")

// ErrorClosed heap is closed.
var ErrorClosed = errors.New("gengc.closed")

// GenerationID orders generations from youngest to oldest. Promotion
// always moves an object to a strictly higher GenerationID.
type GenerationID int32

const (
	// Young generation, also called nursery, all small objects are
	// born here.
	Young GenerationID = 0

	// MaxGenerations is the oldest regular generation, survivors are
	// not promoted beyond this.
	MaxGenerations GenerationID = 3

	// LargeObject class, objects allocated at or above the large object
	// threshold land here and are never promoted. It orders after every
	// regular generation.
	LargeObject GenerationID = MaxGenerations + 1
)

// NumGenerations is the number of generation sets maintained by the
// heap, including the large object class.
const NumGenerations = int(LargeObject) + 1

// Alignment of every allocation handed out from a thread local buffer.
const Alignment = int64(8)

// Isvalid return true if generation is one of the known sets.
func (g GenerationID) Isvalid() bool {
	return g >= Young && g <= LargeObject
}

func (g GenerationID) String() string {
	switch g {
	case Young:
		return "young"
	case LargeObject:
		return "large"
	}
	return "gen" + strconv.Itoa(int(g))
}
