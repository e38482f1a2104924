package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic backup loop.
type BackupConfig struct {
	Enabled       bool
	Interval      time.Duration
	Path          string
	RetentionDays int
}

// BackupService snapshots the database on a timer and prunes old
// snapshots.
type BackupService struct {
	db     *DB
	config BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Path == "" {
		cfg.Path = "backups"
	}
	return &BackupService{db: db, config: cfg, logger: logger}
}

// Start runs the backup loop until ctx is cancelled. The first backup
// happens immediately so a fresh deployment is covered right away.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backups disabled")
		return
	}
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Str("path", s.config.Path).
		Msg("backup service started")

	if err := s.perform(); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.perform(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
				continue
			}
			s.cleanup()
		}
	}
}

func (s *BackupService) perform() error {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", time.Now().UTC().Format("20060102_150405"))
	dest := filepath.Join(s.config.Path, name)
	if err := s.db.Backup(dest); err != nil {
		return err
	}
	s.logger.Info().Str("path", dest).Msg("backup completed")
	return nil
}

func (s *BackupService) cleanup() {
	if s.config.RetentionDays <= 0 {
		return
	}
	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	removed, err := s.db.CleanupBackups(s.config.Path, retention)
	if err != nil {
		s.logger.Error().Err(err).Msg("backup cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old backups deleted")
	}
}
