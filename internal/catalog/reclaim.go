package catalog

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// clearCaptureLink removes the capture-slot symlink an old index
// directory still holds — the retention sweep's "clear capture-slot
// link on old index" step (§6.5d). The link is matched by glob rather
// than a hardcoded "FCAP" name so a directory holding stray retention
// artifacts (a partially-written ".tmp" sibling, a differently-cased
// link) is still cleared in one pass. A directory with no matching link
// is not an error — ReclaimOldest may race a disk that was already
// cleared by a previous sweep.
func clearCaptureLink(indexPath string) error {
	if _, err := os.Stat(indexPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	matches, err := doublestar.Glob(os.DirFS(indexPath), "[Ff][Cc][Aa][Pp]*")
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(filepath.Join(indexPath, m)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
