// Package heap implement the generational object store and its
// mark-and-sweep collector.
//
// Objects live in a slot arena, the registry, addressed by
// api.ObjectID. Each generation holds the set of ObjectIDs currently
// belonging to it, an object is in exactly one set at any instant.
// Objects are born in the young generation or, when large, in the
// large object class. Survivors of a collection are promoted to the
// next generation, upto api.MaxGenerations.
//
// Collecting generation g marks everything reachable from the root set
// without descending into generations older than g, then treats every
// object older than g as an additional root. This is the remembered
// set, computed by a full scan of older generations. Unmarked objects
// of generation g that are not rooted are reclaimed.
//
// Locks are always acquired in the following order: collector mutex,
// generation sets in ascending order, registry, roots, weak table.
package heap
