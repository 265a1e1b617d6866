package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const runDirPrefix = "collager-run-"

// CleanupStaleRunDirs removes run directories under dir (the system temp
// dir when empty) older than maxAge. Runs remove their own directory; this
// catches the ones left behind by killed processes.
func CleanupStaleRunDirs(dir string, maxAge time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.RemoveAll(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
