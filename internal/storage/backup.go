package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const backupTimeLayout = "2006-01-02_15-04-05"

// BackupInfo describes one snapshot directory under backups/.
type BackupInfo struct {
	RunID   string
	Path    string
	Created time.Time
}

// Snapshot copies worldDir into backups/<worldName>_<timestamp>/,
// preserving directory structure. The snapshot is an independent set of
// files: it does not share region sectors or inodes with the source.
func Snapshot(worldDir, worldName string, now time.Time) (BackupInfo, error) {
	runID := uuid.NewString()
	backupName := fmt.Sprintf("%s_%s", worldName, now.UTC().Format(backupTimeLayout))
	dest := filepath.Join(worldDir, "backups", backupName)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return BackupInfo{}, fmt.Errorf("storage: create backup dir: %w", err)
	}

	skip := filepath.Join(worldDir, "backups")
	err := filepath.WalkDir(worldDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == worldDir {
			return nil
		}
		if path == skip || strings.HasPrefix(path, skip+string(filepath.Separator)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(worldDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return BackupInfo{}, fmt.Errorf("storage: snapshot %s: %w", worldDir, err)
	}

	return BackupInfo{RunID: runID, Path: dest, Created: now}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// ListBackups returns every snapshot under worldDir/backups, most
// recent first.
func ListBackups(worldDir string) ([]BackupInfo, error) {
	backupsDir := filepath.Join(worldDir, "backups")
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list backups: %w", err)
	}

	var infos []BackupInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, BackupInfo{
			Path:    filepath.Join(backupsDir, e.Name()),
			Created: info.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Created.After(infos[j].Created) })
	return infos, nil
}

// Restore copies a backup snapshot back over worldDir, overwriting
// existing files. Callers are expected to have already taken the live
// world offline.
func Restore(backupPath, worldDir string) error {
	return filepath.WalkDir(backupPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == backupPath {
			return nil
		}
		rel, err := filepath.Rel(backupPath, path)
		if err != nil {
			return err
		}
		target := filepath.Join(worldDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
