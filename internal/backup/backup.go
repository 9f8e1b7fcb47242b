// Package backup takes verified point-in-time snapshots of the SQLite family
// tree database and restores them.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix      = "familytree-"
	fileSuffix      = ".db"
	timestampLayout = "20060102-150405.000000"
)

// ErrNoDatabase is returned when the database to snapshot does not exist.
var ErrNoDatabase = errors.New("database not found")

// Config holds snapshot settings.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir receives the snapshot files.
	Dir string

	// Keep is the number of newest snapshots retained (default: 10).
	Keep int
}

// Info describes a snapshot on disk.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a completed snapshot.
type Result struct {
	Info
	Members   int           `json:"members"`
	Relations int           `json:"relations"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"duration_ms"`
}

// Snapshot copies the database with VACUUM INTO, which is consistent under
// WAL mode, verifies the copy and prunes snapshots beyond cfg.Keep.
func Snapshot(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	start := time.Now()

	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, cfg.DBPath)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now().UTC()
	path := filepath.Join(cfg.Dir, filePrefix+now.Format(timestampLayout)+fileSuffix)

	src, err := openReadOnly(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// VACUUM INTO does not accept a bound parameter for the target.
	target := strings.ReplaceAll(path, "'", "''")
	if _, err := src.ExecContext(ctx, "VACUUM INTO '"+target+"'"); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	members, relations, err := Verify(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("snapshot verification failed: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	pruned, err := prune(cfg.Dir, cfg.Keep)
	if err != nil {
		logger.Warn("backup: failed to prune old snapshots", "dir", cfg.Dir, "error", err)
	}

	result := &Result{
		Info:      Info{Path: path, Timestamp: now, Size: stat.Size()},
		Members:   members,
		Relations: relations,
		Pruned:    pruned,
		Duration:  time.Since(start),
	}
	logger.Info("backup: snapshot created", "path", path, "size", result.Size,
		"members", members, "relations", relations, "pruned", pruned)
	return result, nil
}

// Verify runs SQLite's integrity check on a snapshot and returns its member
// and relation counts. A file without both tables is rejected.
func Verify(ctx context.Context, path string) (members, relations int, err error) {
	db, err := openReadOnly(path)
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&check); err != nil {
		return 0, 0, fmt.Errorf("failed to run integrity check: %w", err)
	}
	if check != "ok" {
		return 0, 0, fmt.Errorf("integrity check failed: %s", check)
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&members); err != nil {
		return 0, 0, fmt.Errorf("not a family tree database: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relations").Scan(&relations); err != nil {
		return 0, 0, fmt.Errorf("not a family tree database: %w", err)
	}
	return members, relations, nil
}

// Restore replaces the database at dbPath with a verified snapshot. The
// database must not be open. On failure the previous file is put back.
func Restore(ctx context.Context, snapshotPath, dbPath string) error {
	if _, _, err := Verify(ctx, snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	previous := dbPath + ".pre-restore"
	hadPrevious := false
	if _, err := os.Stat(dbPath); err == nil {
		if err := os.Rename(dbPath, previous); err != nil {
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
		hadPrevious = true
	}
	// Stale WAL files would be replayed against the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dbPath + suffix)
	}

	rollback := func(cause error) error {
		_ = os.Remove(dbPath)
		if hadPrevious {
			if err := os.Rename(previous, dbPath); err != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", err, cause)
			}
		}
		return fmt.Errorf("restore failed, previous database kept: %w", cause)
	}

	if err := copyFile(snapshotPath, dbPath); err != nil {
		return rollback(err)
	}
	if _, _, err := Verify(ctx, dbPath); err != nil {
		return rollback(err)
	}

	if hadPrevious {
		_ = os.Remove(previous)
	}
	return nil
}

// List returns the snapshots in dir, newest first. Files that do not follow
// the snapshot naming scheme are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ts, err := time.Parse(timestampLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{Path: filepath.Join(dir, name), Timestamp: ts, Size: info.Size()})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// prune deletes every snapshot after the newest keep.
func prune(dir string, keep int) (int, error) {
	snapshots, err := List(dir)
	if err != nil || len(snapshots) <= keep {
		return 0, err
	}

	removed := 0
	var lastErr error
	for _, s := range snapshots[keep:] {
		if err := os.Remove(s.Path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return removed, nil
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
