package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dirtbags/pcapdb/internal/metrics"
)

// SQLCatalog is a database/sql-backed Catalog, generalizing
// original_source indexer/db.c's hand-written libpq calls
// (paramExec, set_save_info, set_index_ready, save_stats) to any
// database/sql driver. No driver import ships in this package; callers
// wire in whichever driver they've registered via sql.Open and pass the
// resulting *sql.DB in (cmd/pcapdb registers github.com/lib/pq). The
// queries use PostgreSQL syntax ($n placeholders, FOR UPDATE, GREATEST).
type SQLCatalog struct {
	db *sql.DB
}

// NewSQLCatalog wraps an already-opened *sql.DB.
func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// pickDiskQuery locks the lowest-usage active disk row for the rest of
// the reserving transaction, so two concurrent writers never both
// reserve against the same disk's stale usage count.
const pickDiskQuery = `
SELECT id, uuid, root_path, usage, capacity
FROM capture_node_api_disk
WHERE mode = 'ACTIVE'
ORDER BY usage
LIMIT 1
FOR UPDATE`

func (c *SQLCatalog) ReserveSlot(ctx context.Context, start, end time.Time) (SaveInfo, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: begin reserve: %w", err)
	}
	defer tx.Rollback()

	var diskID uint64
	var diskUUID, root string
	var usage, capacity int64
	row := tx.QueryRowContext(ctx, pickDiskQuery)
	if err := row.Scan(&diskID, &diskUUID, &root, &usage, &capacity); err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: reserve slot: %w", err)
	}

	if capacity > 0 && usage >= capacity {
		if err := reclaimOldestTx(ctx, tx, diskID, root); err != nil {
			return SaveInfo{}, fmt.Errorf("catalog: reclaim before reserve: %w", err)
		}
	}

	var slotID uint64
	insertSlot := `INSERT INTO capture_slot (disk_id, start_ts, end_ts, mtime) VALUES ($1, $2, $3, now()) RETURNING id`
	if err := tx.QueryRowContext(ctx, insertSlot, diskID, start, end).Scan(&slotID); err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: insert slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE capture_node_api_disk SET usage = usage + 1 WHERE id = $1`, diskID); err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: increment disk usage: %w", err)
	}

	indexID := fmt.Sprintf("%d-%d", diskID, slotID)
	indexPath := fmt.Sprintf("%s/index/%s", root, indexID)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO capture_index (index_id, index_path, slot_id) VALUES ($1, $2, $3)`,
		indexID, indexPath, slotID); err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: insert index row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SaveInfo{}, fmt.Errorf("catalog: commit reserve: %w", err)
	}

	return SaveInfo{
		SlotID:    slotID,
		DiskUUID:  diskUUID,
		SlotPath:  fmt.Sprintf("%s/capture/%d.fcap", root, slotID),
		IndexID:   indexID,
		IndexPath: indexPath,
	}, nil
}

func (c *SQLCatalog) MarkIndexReady(ctx context.Context, info SaveInfo) error {
	if _, err := c.db.ExecContext(ctx, `UPDATE capture_index SET ready = true WHERE index_id = $1`, info.IndexID); err != nil {
		return fmt.Errorf("catalog: mark ready: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE capture_slot SET mtime = now() WHERE id = $1`, info.SlotID); err != nil {
		return fmt.Errorf("catalog: update slot mtime: %w", err)
	}
	return nil
}

func (c *SQLCatalog) SaveStats(ctx context.Context, info SaveInfo, stats *metrics.ChainStats) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO capture_index_stats
		 (index_id, captured, dropped, dll_errors, network_errors, transport_errors, other_net_layer)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		info.IndexID, stats.CapturedPkts, stats.DroppedPkts, stats.DLLErrors,
		stats.NetworkErrors, stats.TransportErrors, stats.OtherNetLayer)
	if err != nil {
		return fmt.Errorf("catalog: save stats: %w", err)
	}
	return nil
}

// ReclaimOldest evicts the least-recently-touched slot on the disk
// identified by diskUUID, for an operator-triggered sweep outside of
// ReserveSlot's own headroom check (§2 DOMAIN STACK's watched
// ".reclaim" sentinel).
func (c *SQLCatalog) ReclaimOldest(ctx context.Context, diskUUID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin reclaim: %w", err)
	}
	defer tx.Rollback()

	var diskID uint64
	var root string
	if err := tx.QueryRowContext(ctx,
		`SELECT id, root_path FROM capture_node_api_disk WHERE uuid = $1`, diskUUID,
	).Scan(&diskID, &root); err != nil {
		return fmt.Errorf("catalog: lookup disk %s: %w", diskUUID, err)
	}

	if err := reclaimOldestTx(ctx, tx, diskID, root); err != nil {
		return err
	}
	return tx.Commit()
}

// reclaimOldestTx finds the oldest capture_slot row on diskID (by
// mtime), clears its index directory's capture-file link, drops the
// slot and its index row, and decrements the disk's usage (§6.5b-d). A
// disk with no slots yet is left untouched.
func reclaimOldestTx(ctx context.Context, tx *sql.Tx, diskID uint64, root string) error {
	var slotID uint64
	var indexPath sql.NullString
	row := tx.QueryRowContext(ctx, `
		SELECT capture_slot.id, capture_index.index_path
		FROM capture_slot
		LEFT JOIN capture_index ON capture_index.slot_id = capture_slot.id
		WHERE capture_slot.disk_id = $1
		ORDER BY capture_slot.mtime ASC
		LIMIT 1
		FOR UPDATE OF capture_slot`, diskID)
	if err := row.Scan(&slotID, &indexPath); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("oldest slot on disk: %w", err)
	}

	if indexPath.Valid {
		if err := clearCaptureLink(indexPath.String); err != nil {
			return fmt.Errorf("clear capture-slot link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE capture_index SET slot_id = NULL WHERE slot_id = $1`, slotID); err != nil {
			return fmt.Errorf("clear capture-slot link on old index: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_slot WHERE id = $1`, slotID); err != nil {
		return fmt.Errorf("delete oldest slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE capture_node_api_disk SET usage = GREATEST(usage - 1, 0) WHERE id = $1`, diskID); err != nil {
		return fmt.Errorf("decrement disk usage: %w", err)
	}
	return nil
}
