package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// BackupScheduler takes a backup on a fixed interval until its context is
// cancelled.
type BackupScheduler struct {
	manager  *BackupManager
	interval time.Duration
	logger   *slog.Logger

	mu           sync.RWMutex
	running      bool
	lastBackup   time.Time
	lastError    error
	backupCount  int
	failureCount int
}

// SchedulerStatus is a snapshot of a scheduler's history.
type SchedulerStatus struct {
	Running      bool
	Interval     time.Duration
	LastBackup   time.Time
	LastError    error
	BackupCount  int
	FailureCount int
}

// NewBackupScheduler creates a scheduler that backs up every interval.
func NewBackupScheduler(manager *BackupManager, interval time.Duration, logger *slog.Logger) *BackupScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupScheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, taking a backup every interval, until ctx is done. A failed
// backup is logged and retried on the next tick.
func (s *BackupScheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("backup interval must be positive")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Backup scheduler started", "interval", s.interval, "dir", s.manager.Dir())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Backup scheduler stopped")
			return nil
		case <-ticker.C:
			s.runBackup(ctx)
		}
	}
}

func (s *BackupScheduler) runBackup(ctx context.Context) {
	info, err := s.manager.Create(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failureCount++
		s.lastError = err
		s.logger.Error("Scheduled backup failed", "error", err)
		return
	}

	s.backupCount++
	s.lastError = nil
	s.lastBackup = info.CreatedAt
}

// Status returns the scheduler's current state.
func (s *BackupScheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SchedulerStatus{
		Running:      s.running,
		Interval:     s.interval,
		LastBackup:   s.lastBackup,
		LastError:    s.lastError,
		BackupCount:  s.backupCount,
		FailureCount: s.failureCount,
	}
}
