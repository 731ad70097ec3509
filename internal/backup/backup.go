// Package backup copies the store database files to and from a backup
// directory. Only the most recent backup of each store is kept. Stores
// must be closed while a backup or restore runs; the caller sequences
// that around shutdown and startup.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Stores named inside the backup directory.
const (
	textStoreName   = "text"
	vectorStoreName = "vectors"
)

// Info describes one finished backup.
type Info struct {
	Store      string    `json:"store"`
	SourcePath string    `json:"source_path"`
	BackupPath string    `json:"backup_path"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager backs up and restores the two store files.
type Manager struct {
	dir        string
	textPath   string
	vectorPath string
	logger     *slog.Logger
}

// NewManager creates a backup manager for the given store paths.
func NewManager(dir, textPath, vectorPath string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{textStoreName, vectorStoreName, "metadata"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}
	return &Manager{dir: dir, textPath: textPath, vectorPath: vectorPath, logger: logger}, nil
}

// BackupAll backs up both stores. A store whose file does not exist yet is
// skipped without error.
func (m *Manager) BackupAll() ([]Info, error) {
	var infos []Info
	for _, target := range []struct {
		store string
		path  string
	}{
		{textStoreName, m.textPath},
		{vectorStoreName, m.vectorPath},
	} {
		info, err := m.backupOne(target.store, target.path)
		if err != nil {
			return infos, err
		}
		if info != nil {
			infos = append(infos, *info)
		}
	}
	return infos, nil
}

// RestoreAll restores both stores from their latest backups. A store with
// no backup is skipped. Existing store files are overwritten.
func (m *Manager) RestoreAll() ([]Info, error) {
	var infos []Info
	for _, target := range []struct {
		store string
		path  string
	}{
		{textStoreName, m.textPath},
		{vectorStoreName, m.vectorPath},
	} {
		info, err := m.restoreOne(target.store, target.path)
		if err != nil {
			return infos, err
		}
		if info != nil {
			infos = append(infos, *info)
		}
	}
	return infos, nil
}

// Latest returns the newest backup for each store.
func (m *Manager) Latest() ([]Info, error) {
	var infos []Info
	for _, store := range []string{textStoreName, vectorStoreName} {
		path, err := m.latestBackup(store)
		if err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}
		info, err := m.readInfo(path)
		if err != nil {
			// Metadata missing, report what the file itself says.
			stat, serr := os.Stat(path)
			if serr != nil {
				continue
			}
			info = &Info{Store: store, BackupPath: path, SizeBytes: stat.Size(), CreatedAt: stat.ModTime().UTC()}
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

func (m *Manager) backupOne(store, sourcePath string) (*Info, error) {
	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		m.logger.Info("nothing to back up", "store", store, "path", sourcePath)
		return nil, nil
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	name := fmt.Sprintf("%s_backup_%s.db", store, timestamp)
	backupPath := filepath.Join(m.dir, store, name)

	size, err := copyFile(sourcePath, backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to back up %s store: %w", store, err)
	}

	info := &Info{
		Store:      store,
		SourcePath: sourcePath,
		BackupPath: backupPath,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.writeInfo(backupPath, info); err != nil {
		return nil, err
	}

	m.cleanupOld(store, backupPath)
	m.logger.Info("backup created", "store", store, "path", backupPath, "bytes", size)
	return info, nil
}

func (m *Manager) restoreOne(store, destPath string) (*Info, error) {
	backupPath, err := m.latestBackup(store)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		m.logger.Info("no backup to restore", "store", store)
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, err
	}

	// Stale WAL sidecars from a previous run would corrupt the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(destPath + suffix)
	}

	size, err := copyFile(backupPath, destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to restore %s store: %w", store, err)
	}

	m.logger.Info("backup restored", "store", store, "from", backupPath, "bytes", size)
	return &Info{
		Store:      store,
		SourcePath: destPath,
		BackupPath: backupPath,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// cleanupOld removes every backup of the store except keep.
func (m *Manager) cleanupOld(store, keep string) {
	files, err := filepath.Glob(filepath.Join(m.dir, store, "*.db"))
	if err != nil {
		return
	}
	for _, file := range files {
		if file == keep {
			continue
		}
		if err := os.Remove(file); err != nil {
			m.logger.Warn("failed to remove old backup", "path", file, "error", err)
			continue
		}
		os.Remove(m.metadataPath(file))
	}
}

// latestBackup returns the newest backup file for a store, "" if none.
func (m *Manager) latestBackup(store string) (string, error) {
	files, err := filepath.Glob(filepath.Join(m.dir, store, "*.db"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	sort.Slice(files, func(i, j int) bool {
		si, _ := os.Stat(files[i])
		sj, _ := os.Stat(files[j])
		if si == nil || sj == nil {
			return files[i] < files[j]
		}
		return si.ModTime().After(sj.ModTime())
	})
	return files[0], nil
}

func (m *Manager) metadataPath(backupPath string) string {
	base := strings.TrimSuffix(filepath.Base(backupPath), ".db")
	return filepath.Join(m.dir, "metadata", base+".json")
}

func (m *Manager) writeInfo(backupPath string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath(backupPath), data, 0644)
}

func (m *Manager) readInfo(backupPath string) (*Info, error) {
	data, err := os.ReadFile(m.metadataPath(backupPath))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, err
	}
	return n, out.Close()
}
