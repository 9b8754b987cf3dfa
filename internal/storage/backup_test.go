package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// setupBackupDB creates a migrated database holding one card and returns
// its path. The connection is closed before returning.
func setupBackupDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cardvault.db")
	config := DefaultConfig(dbPath)
	config.AutoMigrate = true
	db, err := Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	service := NewService(db)
	defer func() { _ = service.Close() }()

	insertCard(t, service, "c1", "Lightning Bolt")
	return dbPath
}

func insertCard(t *testing.T, service *Service, id, name string) {
	t.Helper()

	now := time.Now().UTC()
	card := &inventory.Card{
		ID:        id,
		UserID:    "u1",
		Name:      name,
		Edition:   "M10",
		Condition: inventory.ConditionNearMint,
		Quantity:  1,
		Status:    inventory.StatusCollection,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.Cards().Put(context.Background(), card); err != nil {
		t.Fatalf("Failed to insert card: %v", err)
	}
}

func cardNames(t *testing.T, dbPath string) []string {
	t.Helper()

	db, err := Open(DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	service := NewService(db)
	defer func() { _ = service.Close() }()

	cards, err := service.Cards().ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	names := make([]string, 0, len(cards))
	for _, c := range cards {
		names = append(names, c.Name)
	}
	return names
}

// steppingClock returns a clock that advances one second per call so
// backup names never collide.
func steppingClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBackupManager_CreateAndList(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{})
	bm.now = steppingClock()

	if want := filepath.Join(filepath.Dir(dbPath), "backups"); bm.Dir() != want {
		t.Errorf("Dir() = %q, want %q", bm.Dir(), want)
	}

	ctx := context.Background()
	first, err := bm.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.Encrypted {
		t.Error("backup without a password should not be encrypted")
	}
	if first.Size == 0 || first.Checksum == "" {
		t.Errorf("backup info incomplete: %+v", first)
	}
	if err := verifyDatabase(ctx, first.Path); err != nil {
		t.Errorf("backup does not verify: %v", err)
	}

	second, err := bm.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	backups, err := bm.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("List() returned %d backups, want 2", len(backups))
	}
	if backups[0].Name != second.Name || backups[1].Name != first.Name {
		t.Errorf("List() order = %s, %s; want newest first", backups[0].Name, backups[1].Name)
	}
	if !backups[0].CreatedAt.After(backups[1].CreatedAt) {
		t.Error("CreatedAt is not parsed from the backup name")
	}
}

func TestBackupManager_ListMissingDir(t *testing.T) {
	bm := NewBackupManager(filepath.Join(t.TempDir(), "x.db"), BackupOptions{})

	backups, err := bm.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("List() = %v, want empty", backups)
	}
}

func TestBackupManager_ListIgnoresForeignFiles(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{})

	if _, err := bm.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(bm.Dir(), "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	backups, err := bm.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("List() returned %d backups, want 1", len(backups))
	}
}

func TestBackupManager_Prune(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{Keep: 2})
	bm.now = steppingClock()

	var names []string
	for i := 0; i < 4; i++ {
		info, err := bm.Create(context.Background())
		if err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
		names = append(names, info.Name)
	}

	backups, err := bm.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("List() returned %d backups, want 2", len(backups))
	}
	if backups[0].Name != names[3] || backups[1].Name != names[2] {
		t.Errorf("kept %s, %s; want the two newest", backups[0].Name, backups[1].Name)
	}
}

func TestBackupManager_Restore(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{})

	info, err := bm.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	db, err := Open(DefaultConfig(dbPath))
	if err != nil {
		t.Fatal(err)
	}
	service := NewService(db)
	insertCard(t, service, "c2", "Counterspell")
	_ = service.Close()

	if got := cardNames(t, dbPath); len(got) != 2 {
		t.Fatalf("before restore: %v", got)
	}

	if err := bm.Restore(context.Background(), info.Path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got := cardNames(t, dbPath)
	if len(got) != 1 || got[0] != "Lightning Bolt" {
		t.Errorf("after restore: cards = %v, want [Lightning Bolt]", got)
	}
	if _, err := os.Stat(dbPath + ".old"); err != nil {
		t.Errorf("replaced database was not kept: %v", err)
	}
}

func TestBackupManager_EncryptedRoundTrip(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{Password: "s3cret"})

	info, err := bm.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !info.Encrypted {
		t.Fatal("backup with a password should be encrypted")
	}
	if filepath.Ext(info.Path) != ".enc" {
		t.Errorf("encrypted backup path = %s, want .enc suffix", info.Path)
	}
	plain := info.Path[:len(info.Path)-len(".enc")]
	if _, err := os.Stat(plain); !os.IsNotExist(err) {
		t.Error("plaintext snapshot was left behind")
	}

	wrong := NewBackupManager(dbPath, BackupOptions{Password: "nope"})
	if err := wrong.Restore(context.Background(), info.Path); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Restore() with wrong password error = %v, want ErrWrongPassword", err)
	}

	if err := bm.Restore(context.Background(), info.Path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := cardNames(t, dbPath); len(got) != 1 {
		t.Errorf("after restore: cards = %v", got)
	}
}

func TestBackupManager_RestoreRejectsGarbage(t *testing.T) {
	dbPath := setupBackupDB(t)
	bm := NewBackupManager(dbPath, BackupOptions{})

	bogus := filepath.Join(t.TempDir(), "cardvault-bogus.db")
	if err := os.WriteFile(bogus, []byte("definitely not sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := bm.Restore(context.Background(), bogus); err == nil {
		t.Fatal("Restore() of garbage: expected error")
	}
	if got := cardNames(t, dbPath); len(got) != 1 {
		t.Errorf("database changed after failed restore: %v", got)
	}
	if _, err := os.Stat(dbPath + ".restore.tmp"); !os.IsNotExist(err) {
		t.Error("staging file was left behind")
	}
}
