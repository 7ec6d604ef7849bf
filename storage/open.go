package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open resolves a backend by name. "memory" ignores dataDir; "leveldb" and
// "bolt" store their files beneath it.
func Open(backend, dataDir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "leveldb":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return NewLevelDB(filepath.Join(dataDir, "ledger"))
	case "bolt", "bbolt":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return NewBoltDB(filepath.Join(dataDir, "ledger.db"))
	case "memory":
		return NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", backend)
	}
}
