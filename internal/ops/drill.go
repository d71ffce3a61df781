package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/abhishek0-0/healthsec-CTF/internal/agent"
)

// Inventory summarizes a data directory.
type Inventory struct {
	Driver string `json:"driver"`
	Agents int    `json:"agents"`
	Files  int    `json:"files"`
	// Digest covers every file except the SQLite database, whose bytes
	// change across snapshots; Agents stands in for it.
	Digest string `json:"digest"`
}

// DetectDriver picks the storage driver from the files present.
func DetectDriver(dataDir string) string {
	if _, err := os.Stat(filepath.Join(dataDir, agent.SQLiteFileName)); err == nil {
		return agent.DriverSQLite
	}
	return agent.DriverFile
}

func Inspect(ctx context.Context, dataDir string) (Inventory, error) {
	inv := Inventory{Driver: DetectDriver(dataDir)}
	repo, err := agent.Open(inv.Driver, dataDir)
	if err != nil {
		return Inventory{}, err
	}
	defer repo.Close()
	if inv.Agents, err = repo.Count(ctx); err != nil {
		return Inventory{}, err
	}
	inv.Digest, inv.Files, err = dirDigest(dataDir)
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

// DrillReport is the outcome of a backup/restore rehearsal.
type DrillReport struct {
	Archive    string    `json:"archive"`
	RestoreDir string    `json:"restore_dir"`
	Source     Inventory `json:"source"`
	Restored   Inventory `json:"restored"`
}

// Drill backs dataDir up into workDir, restores it next to the archive and
// checks that both sides hold the same data.
func Drill(ctx context.Context, dataDir, workDir string, now time.Time) (DrillReport, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return DrillReport{}, err
	}
	ts := now.UTC().Format("20060102T150405Z")
	rep := DrillReport{
		Archive:    filepath.Join(workDir, "ghia-drill-"+ts+".tar.gz"),
		RestoreDir: filepath.Join(workDir, "ghia-drill-restore-"+ts),
	}

	if err := BackupDataDir(ctx, dataDir, rep.Archive); err != nil {
		return rep, err
	}
	if err := RestoreDataDir(rep.Archive, rep.RestoreDir); err != nil {
		return rep, err
	}

	var err error
	if rep.Source, err = Inspect(ctx, dataDir); err != nil {
		return rep, err
	}
	if rep.Restored, err = Inspect(ctx, rep.RestoreDir); err != nil {
		return rep, err
	}
	if rep.Source.Agents != rep.Restored.Agents {
		return rep, fmt.Errorf("agent count mismatch after restore: src=%d restored=%d", rep.Source.Agents, rep.Restored.Agents)
	}
	if rep.Source.Digest != rep.Restored.Digest {
		return rep, fmt.Errorf("digest mismatch after restore: src=%s restored=%s", rep.Source.Digest, rep.Restored.Digest)
	}
	return rep, nil
}

func dirDigest(root string) (string, int, error) {
	root = filepath.Clean(root)
	entries := []string{}
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == agent.SQLiteFileName || skipInBackup(rel) {
			return nil
		}
		entries = append(entries, rel)
		return nil
	}); err != nil {
		return "", 0, err
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, rel := range entries {
		_, _ = io.WriteString(h, rel)
		_, _ = io.WriteString(h, "\n")
		b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, err
		}
		if _, err := h.Write(b); err != nil {
			return "", 0, err
		}
		_, _ = io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)), len(entries), nil
}
