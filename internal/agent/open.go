package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the repo for driver inside dataDir.
func Open(driver, dataDir string) (Repo, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile:
		return NewFileRepo(dataDir)
	case DriverSQLite:
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return OpenSQLite(filepath.Join(dataDir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
