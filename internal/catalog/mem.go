package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirtbags/pcapdb/internal/metrics"
)

// Disk is one storage target a MemCatalog can distribute slots across,
// standing in for the capture_node_api_disk rows pcapdb.c's TEST_Q
// query selects from ("mode='ACTIVE' ORDER BY usage"). Capacity bounds
// how many live slots it retains before ReserveSlot reclaims the oldest
// one to make room; zero means unbounded (no automatic reclaim).
type Disk struct {
	UUID     string
	Root     string // base directory; slots and indices are created under here
	Capacity int
}

// slotRecord is what MemCatalog remembers about one reserved slot: just
// enough to support usage accounting and oldest-slot reclamation
// (§6.5b-e) without a real database behind it.
type slotRecord struct {
	diskUUID  string
	indexID   string
	indexPath string
	mtime     time.Time
}

// MemCatalog is an in-memory, single-process Catalog: it hands out
// slots from the lowest-usage disk and keeps all bookkeeping (usage,
// slot mtimes, ready indices, stats) in memory. It is the reference
// implementation used by tests and pcapdb's default single-node
// backend; see DESIGN.md for why this ships instead of requiring a
// database/sql driver.
type MemCatalog struct {
	mu       sync.Mutex
	disks    []Disk
	nextSlot uint64

	usage map[string]int // disk UUID -> live slot count
	slots map[uint64]*slotRecord

	ready map[string]bool
	stats map[string]*metrics.ChainStats
}

// NewMemCatalog builds a MemCatalog that distributes slots across disks.
func NewMemCatalog(disks []Disk) *MemCatalog {
	return &MemCatalog{
		disks: disks,
		usage: make(map[string]int),
		slots: make(map[uint64]*slotRecord),
		ready: make(map[string]bool),
		stats: make(map[string]*metrics.ChainStats),
	}
}

func (c *MemCatalog) ReserveSlot(ctx context.Context, start, end time.Time) (SaveInfo, error) {
	if err := ctx.Err(); err != nil {
		return SaveInfo{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.disks) == 0 {
		return SaveInfo{}, fmt.Errorf("catalog: no disks registered")
	}

	disk := c.pickDiskLocked()
	if disk.Capacity > 0 && c.usage[disk.UUID] >= disk.Capacity {
		if err := c.reclaimOldestLocked(disk.UUID); err != nil {
			return SaveInfo{}, fmt.Errorf("catalog: reclaim before reserve: %w", err)
		}
	}

	c.nextSlot++
	slotID := c.nextSlot

	indexID := fmt.Sprintf("%s-%d", disk.UUID, slotID)
	info := SaveInfo{
		SlotID:    slotID,
		DiskUUID:  disk.UUID,
		SlotPath:  filepath.Join(disk.Root, "capture", fmt.Sprintf("%d.fcap", slotID)),
		IndexID:   indexID,
		IndexPath: filepath.Join(disk.Root, "index", indexID),
	}

	c.usage[disk.UUID]++
	c.slots[slotID] = &slotRecord{
		diskUUID:  disk.UUID,
		indexID:   indexID,
		indexPath: info.IndexPath,
		mtime:     time.Now(),
	}
	return info, nil
}

// pickDiskLocked returns the registered disk with the lowest live-slot
// usage, breaking ties by registration order (§6.5a).
func (c *MemCatalog) pickDiskLocked() Disk {
	best := c.disks[0]
	bestUsage := c.usage[best.UUID]
	for _, d := range c.disks[1:] {
		if u := c.usage[d.UUID]; u < bestUsage {
			best, bestUsage = d, u
		}
	}
	return best
}

func (c *MemCatalog) MarkIndexReady(ctx context.Context, info SaveInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready[info.IndexID] = true
	if rec, ok := c.slots[info.SlotID]; ok {
		rec.mtime = time.Now()
	}
	return nil
}

func (c *MemCatalog) SaveStats(ctx context.Context, info SaveInfo, stats *metrics.ChainStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[info.IndexID] = stats
	return nil
}

func (c *MemCatalog) ReclaimOldest(ctx context.Context, diskUUID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reclaimOldestLocked(diskUUID)
}

// reclaimOldestLocked finds the slot with the oldest mtime on diskUUID,
// clears its capture-file link, and drops its bookkeeping (§6.5b-d). A
// disk with no tracked slots is left untouched.
func (c *MemCatalog) reclaimOldestLocked(diskUUID string) error {
	var oldestID uint64
	var oldest *slotRecord
	for id, rec := range c.slots {
		if rec.diskUUID != diskUUID {
			continue
		}
		if oldest == nil || rec.mtime.Before(oldest.mtime) {
			oldestID, oldest = id, rec
		}
	}
	if oldest == nil {
		return nil
	}

	if err := clearCaptureLink(oldest.indexPath); err != nil {
		return fmt.Errorf("clear capture link for slot %d: %w", oldestID, err)
	}

	delete(c.slots, oldestID)
	delete(c.ready, oldest.indexID)
	if c.usage[diskUUID] > 0 {
		c.usage[diskUUID]--
	}
	return nil
}

// IsReady reports whether MarkIndexReady has been called for indexID.
// Used by tests to assert write-order invariants.
func (c *MemCatalog) IsReady(indexID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready[indexID]
}

// Stats returns the stats saved for indexID, if any.
func (c *MemCatalog) Stats(indexID string) (*metrics.ChainStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[indexID]
	return s, ok
}

// Usage returns a disk's current live-slot count, for tests asserting
// reclaim behavior.
func (c *MemCatalog) Usage(diskUUID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage[diskUUID]
}
