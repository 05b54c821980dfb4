package catalog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dirtbags/pcapdb/internal/debug"
)

// ReclaimSentinel is the file operator tooling drops inside a disk's
// root directory to request an out-of-band ReclaimOldest sweep, outside
// of ReserveSlot's own headroom check.
const ReclaimSentinel = ".reclaim"

// WatchReclaim watches root for ReclaimSentinel and calls
// cat.ReclaimOldest(ctx, diskUUID) each time it appears, removing the
// sentinel afterward so the same request isn't replayed. It blocks until
// ctx is cancelled or the watcher itself fails to start; never used on
// the hot capture path, only for this operator-triggered sweep.
func WatchReclaim(ctx context.Context, cat Catalog, diskUUID, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	sentinelPath := filepath.Join(root, ReclaimSentinel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != sentinelPath || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if err := cat.ReclaimOldest(ctx, diskUUID); err != nil {
				debug.Log("CATALOG", "reclaim sweep for disk %s failed: %v", diskUUID, err)
				continue
			}
			_ = os.Remove(sentinelPath)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			debug.Log("CATALOG", "watch %s: %v", root, err)
		}
	}
}
