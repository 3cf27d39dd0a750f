package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alfurquan/bitcaskpy/internal/fsutil"
)

// hintInfo is the persisted shape of a segment's .hint sidecar.
type hintInfo struct {
	ID              int   `json:"id"`
	Path            string `json:"path"`
	Size            int64  `json:"size"`
	Entries         int    `json:"entries"`
	MaxSize         int    `json:"max_size"`
	MaxEntries      int    `json:"max_entries"`
	Active          int    `json:"active"`
	Closed          int    `json:"closed"`
	CreatedAtMs     int64  `json:"created_at_ms"`
	LastSyncedAtMs  int64  `json:"last_synced_at_ms"`
}

func hintPath(logPath string) string {
	return logPath + hintSuffix
}

// writeHint persists info to its .hint file using temp-file + fsync +
// rename, so a crash mid-write never leaves a torn hint on disk.
func writeHint(logPath string, info hintInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("segment: marshal hint: %w", err)
	}
	return fsutil.AtomicWriteFile(hintPath(logPath), data, 0644)
}

func readHint(logPath string) (hintInfo, error) {
	data, err := os.ReadFile(hintPath(logPath))
	if err != nil {
		return hintInfo{}, err
	}
	var info hintInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return hintInfo{}, fmt.Errorf("segment: unmarshal hint %s: %w", hintPath(logPath), err)
	}
	return info, nil
}

func logFileName(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("segment_%d%s", id, logSuffix))
}
