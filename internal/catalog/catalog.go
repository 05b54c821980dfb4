// Package catalog defines the abstraction boundary between the writer
// stage and whatever system of record tracks capture slots, completed
// indices, and per-index statistics. It generalizes original_source
// indexer/db.c's direct libpq calls (set_save_info, set_index_ready,
// save_stats) behind a single interface, the way the teacher's
// internal/interfaces package separates the indexer's core operations
// from any particular storage backend.
package catalog

import (
	"context"
	"time"

	"github.com/dirtbags/pcapdb/internal/metrics"
)

// SaveInfo is where one completed bucket chain should be written:
// a capture slot (an FCAP file within a disk) and an index directory
// alongside it. It generalizes struct save_info (output.h) from fixed
// C string buffers to Go strings.
type SaveInfo struct {
	SlotID     uint64
	DiskUUID   string
	SlotPath   string // full path to the FCAP file this chain owns
	IndexID    string
	IndexPath  string // directory the seven FIDX files are written into
}

// Catalog is the system of record a writer stage consults to learn
// where to save a bucket chain, and reports back to once it has
// (set_save_info / set_index_ready / save_stats's combined surface).
// Implementations must satisfy the full §6.5 contract: pick the
// lowest-usage disk, increment its usage, reclaim the oldest slot on a
// full disk, clear that slot's capture-file link, update a slot's
// mtime, and insert/ready/stats the index row.
type Catalog interface {
	// ReserveSlot asks the catalog for the next capture slot and index
	// directory to use, spanning the time range [start, end). Mirrors
	// set_save_info's "pick the least-used ACTIVE disk, round robin"
	// policy (pcapdb.c's TEST_Q query): it increments that disk's usage
	// and, if the disk has no free slot headroom, reclaims the oldest
	// slot on it first.
	ReserveSlot(ctx context.Context, start, end time.Time) (SaveInfo, error)

	// MarkIndexReady records that every FIDX file for info.IndexID has
	// been written and symlinked, and the index may now be searched. It
	// also refreshes info's slot mtime, so a freshly completed slot
	// doesn't look like the oldest one on its disk.
	MarkIndexReady(ctx context.Context, info SaveInfo) error

	// SaveStats persists per-chain capture/parse statistics against
	// info.IndexID for later reporting (save_stats).
	SaveStats(ctx context.Context, info SaveInfo, stats *metrics.ChainStats) error

	// ReclaimOldest evicts the least-recently-touched slot on the disk
	// identified by diskUUID: it clears that slot's capture-file link
	// from its old index directory, drops the slot's catalog row, and
	// decrements the disk's usage. ReserveSlot calls this itself when a
	// disk is full; it is also exposed so an operator-triggered sweep
	// (§2 DOMAIN STACK: a watched ".reclaim" sentinel file) can invoke
	// it out of band. A disk with no tracked slots is a no-op, not an
	// error.
	ReclaimOldest(ctx context.Context, diskUUID string) error
}
