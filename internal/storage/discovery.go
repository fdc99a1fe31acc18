package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DataDir is the per-project directory holding the database and run lock
const DataDir = ".painscout"

// DiscoverDatabase looks for .painscout/*.db in dir only. It does not walk up
// the tree, so a nested project never picks up its parent's database. When
// nothing exists yet it returns the default path inside dir.
func DiscoverDatabase(dir string) (string, error) {
	dataDir := filepath.Join(dir, DataDir)

	entries, err := os.ReadDir(dataDir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read %s: %w", dataDir, err)
	}

	var found []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
			found = append(found, entry.Name())
		}
	}
	sort.Strings(found)

	name := filepath.Base(DefaultPath)
	for _, f := range found {
		if f == name {
			found = []string{f}
			break
		}
	}
	if len(found) > 0 {
		name = found[0]
	}

	abs, err := filepath.Abs(filepath.Join(dataDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return abs, nil
}
