package indexer

import (
	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/debug"
)

// Run drives one indexer worker: pop a filled chain, index it, hand it to
// the writer stage, repeat — the Go analogue of the indexer() thread
// loop. It returns once pool.Filled has been closed and drained, matching
// the pipeline shutdown order (§4.A): capture stops first, then indexers
// drain Filled, then writers drain Indexed.
func Run(pool *bucket.Pool) {
	debug.LogIndex("indexer thread starting")
	for {
		head, ok := pool.Filled.Pop(bucket.Block)
		if !ok {
			// Filled is closed and empty: nothing left to index.
			break
		}

		debug.LogIndex("indexing chain head %d", head.ID)
		IndexChain(head)
		debug.LogIndex("done indexing chain head %d", head.ID)

		pool.Indexed.Push(head)
	}
	debug.LogIndex("indexer thread exiting")
}
