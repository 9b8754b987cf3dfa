package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupPrefix       = "cardvault-"
	backupExt          = ".db"
	encryptedBackupExt = ".db.enc"
	backupTimeLayout   = "20060102T150405.000000000"
)

// BackupOptions configures a BackupManager.
type BackupOptions struct {
	// Dir holds the backups. Defaults to a "backups" directory next to the
	// database.
	Dir string

	// Password encrypts new backups when set and is required to restore
	// encrypted ones.
	Password string

	// Keep is how many backups to retain after each new one. Zero keeps
	// every backup.
	Keep int

	Logger *slog.Logger
}

// BackupManager creates, lists and restores copies of the SQLite database.
type BackupManager struct {
	dbPath   string
	dir      string
	password string
	keep     int
	logger   *slog.Logger
	now      func() time.Time
}

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Encrypted bool      `json:"encrypted"`
	Checksum  string    `json:"checksum"`
}

// NewBackupManager creates a backup manager for the database at dbPath.
func NewBackupManager(dbPath string, opts BackupOptions) *BackupManager {
	if opts.Dir == "" {
		opts.Dir = filepath.Join(filepath.Dir(dbPath), "backups")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BackupManager{
		dbPath:   dbPath,
		dir:      opts.Dir,
		password: opts.Password,
		keep:     opts.Keep,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Dir returns the backup directory.
func (bm *BackupManager) Dir() string {
	return bm.dir
}

// Create writes a verified snapshot of the database. VACUUM INTO copies a
// consistent image without blocking writers.
func (bm *BackupManager) Create(ctx context.Context) (*BackupInfo, error) {
	if err := os.MkdirAll(bm.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	created := bm.now().UTC()
	name := backupPrefix + created.Format(backupTimeLayout)
	plainPath := filepath.Join(bm.dir, name+backupExt)

	src, err := sql.Open("sqlite", bm.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	_, err = src.ExecContext(ctx, `VACUUM INTO ?`, plainPath)
	_ = src.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := verifyDatabase(ctx, plainPath); err != nil {
		_ = os.Remove(plainPath)
		return nil, fmt.Errorf("backup verification failed: %w", err)
	}

	path := plainPath
	if bm.password != "" {
		path = filepath.Join(bm.dir, name+encryptedBackupExt)
		if err := bm.encryptFile(plainPath, path); err != nil {
			_ = os.Remove(plainPath)
			return nil, err
		}
		_ = os.Remove(plainPath)
	}

	info, err := describeBackup(path)
	if err != nil {
		return nil, err
	}
	bm.logger.Info("Created backup", "path", info.Path, "size", info.Size, "encrypted", info.Encrypted)

	if err := bm.prune(); err != nil {
		bm.logger.Warn("Failed to prune old backups", "error", err)
	}
	return info, nil
}

// List returns the backups in the backup directory, newest first.
func (bm *BackupManager) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(bm.dir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !isBackupName(entry.Name()) {
			continue
		}
		info, err := describeBackup(filepath.Join(bm.dir, entry.Name()))
		if err != nil {
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// Restore replaces the database with a backup. The database must not be
// open. The replaced file is kept next to it with a ".old" suffix.
func (bm *BackupManager) Restore(ctx context.Context, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if isSealed(data) {
		if data, err = openBackup(data, bm.password); err != nil {
			return err
		}
	}

	tempPath := bm.dbPath + ".restore.tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to stage restore: %w", err)
	}
	if err := verifyDatabase(ctx, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if _, err := os.Stat(bm.dbPath); err == nil {
		oldPath := bm.dbPath + ".old"
		_ = os.Remove(oldPath)
		if err := os.Rename(bm.dbPath, oldPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
	}
	// Stale WAL files belong to the replaced database.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(bm.dbPath + suffix)
	}

	if err := os.Rename(tempPath, bm.dbPath); err != nil {
		return fmt.Errorf("failed to replace database: %w", err)
	}

	bm.logger.Info("Restored backup", "path", backupPath)
	return nil
}

func (bm *BackupManager) encryptFile(plainPath, sealedPath string) error {
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	sealed, err := sealBackup(plaintext, bm.password)
	if err != nil {
		return fmt.Errorf("failed to encrypt backup: %w", err)
	}
	if err := os.WriteFile(sealedPath, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write encrypted backup: %w", err)
	}
	return nil
}

// prune removes the oldest backups beyond the retention count.
func (bm *BackupManager) prune() error {
	if bm.keep <= 0 {
		return nil
	}
	backups, err := bm.List()
	if err != nil {
		return err
	}
	for _, b := range backups[min(bm.keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return err
		}
		bm.logger.Debug("Pruned backup", "path", b.Path)
	}
	return nil
}

// verifyDatabase checks that path is an intact cardvault database.
func verifyDatabase(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported %q", result)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return fmt.Errorf("not a cardvault database: %w", err)
	}
	return nil
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) &&
		(strings.HasSuffix(name, backupExt) || strings.HasSuffix(name, encryptedBackupExt))
}

func describeBackup(path string) (*BackupInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)

	stamp := strings.TrimPrefix(name, backupPrefix)
	stamp = strings.TrimSuffix(strings.TrimSuffix(stamp, ".enc"), backupExt)
	created, err := time.Parse(backupTimeLayout, stamp)
	if err != nil {
		return nil, fmt.Errorf("unrecognised backup name %q", name)
	}

	sum := sha256.Sum256(data)
	return &BackupInfo{
		Path:      path,
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: created,
		Encrypted: isSealed(data),
		Checksum:  hex.EncodeToString(sum[:]),
	}, nil
}
