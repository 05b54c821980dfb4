package capture

import "github.com/cespare/xxhash/v2"

// InterfaceTable is a read-mostly interface-name -> Source lookup,
// bucketed by an xxhash of the name instead of relying on Go's built-in
// map hash, so the pipeline's per-interface dispatch loop and any
// status/metrics lookup keyed by interface name share one fast,
// allocation-free hash path.
type InterfaceTable struct {
	buckets [][]ifaceEntry
	mask    uint64
}

type ifaceEntry struct {
	name string
	src  Source
}

// NewInterfaceTable builds a table from a name->Source map (the shape
// pipeline.New already receives its sources in).
func NewInterfaceTable(sources map[string]Source) *InterfaceTable {
	n := nextPow2(len(sources))
	t := &InterfaceTable{buckets: make([][]ifaceEntry, n), mask: uint64(n - 1)}
	for name, src := range sources {
		i := xxhash.Sum64String(name) & t.mask
		t.buckets[i] = append(t.buckets[i], ifaceEntry{name, src})
	}
	return t
}

// Lookup returns the Source registered for name, if any.
func (t *InterfaceTable) Lookup(name string) (Source, bool) {
	for _, e := range t.buckets[xxhash.Sum64String(name)&t.mask] {
		if e.name == name {
			return e.src, true
		}
	}
	return nil, false
}

// Range calls f once per registered interface, in no particular order.
func (t *InterfaceTable) Range(f func(name string, src Source)) {
	for _, bucket := range t.buckets {
		for _, e := range bucket {
			f(e.name, e.src)
		}
	}
}

// Len returns the number of registered interfaces.
func (t *InterfaceTable) Len() int {
	n := 0
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
