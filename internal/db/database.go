package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the booking service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations. Transactions
// start as IMMEDIATE so concurrent booking writers serialize at BEGIN
// instead of failing mid-transaction.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS masters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			telegram_username TEXT,
			name TEXT NOT NULL,
			phone TEXT,
			city TEXT,
			timezone TEXT NOT NULL DEFAULT 'Europe/Moscow',
			currency TEXT NOT NULL DEFAULT 'RUB',
			work_schedule TEXT NOT NULL DEFAULT '{}',
			is_premium BOOLEAN NOT NULL DEFAULT 0,
			premium_until DATETIME,
			referral_code TEXT UNIQUE NOT NULL,
			referred_by_id INTEGER,
			is_onboarded BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			telegram_id INTEGER,
			telegram_username TEXT,
			name TEXT NOT NULL,
			phone TEXT,
			comment TEXT,
			total_visits INTEGER NOT NULL DEFAULT 0,
			total_spent INTEGER NOT NULL DEFAULT 0,
			last_visit DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (master_id) REFERENCES masters(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			duration_minutes INTEGER NOT NULL,
			price INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (master_id) REFERENCES masters(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			comment TEXT,
			cancellation_reason TEXT,
			payment_amount INTEGER,
			idempotency_key TEXT UNIQUE,
			rescheduled_from_id INTEGER,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (master_id) REFERENCES masters(id) ON DELETE CASCADE,
			FOREIGN KEY (client_id) REFERENCES clients(id) ON DELETE CASCADE,
			FOREIGN KEY (service_id) REFERENCES services(id) ON DELETE RESTRICT
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			plan TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			starts_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			amount_rub INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (master_id) REFERENCES masters(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS referrals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			referrer_id INTEGER NOT NULL,
			referred_id INTEGER UNIQUE NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			commission_percent INTEGER NOT NULL DEFAULT 20,
			commission_rub INTEGER NOT NULL DEFAULT 0,
			activated_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (referrer_id) REFERENCES masters(id) ON DELETE CASCADE,
			FOREIGN KEY (referred_id) REFERENCES masters(id) ON DELETE CASCADE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_clients_master ON clients(master_id)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_phone ON clients(master_id, phone)`,
		`CREATE INDEX IF NOT EXISTS idx_services_master ON services(master_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_master_time ON appointments(master_id, start_time, end_time)`,
		// Backstop under the transactional overlap check: two active
		// appointments can never share an exact start.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_start
			ON appointments(master_id, start_time)
			WHERE status IN ('scheduled', 'confirmed')`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_master ON subscriptions(master_id, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Backup writes a consistent snapshot of the database to dest.
func (db *DB) Backup(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	_, err := db.Exec("VACUUM INTO ?", dest)
	if err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// CleanupBackups deletes backup files older than retention.
func (db *DB) CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// touch sets updated_at on a row.
func (db *DB) touch(ctx context.Context, table string, id int64) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET updated_at = ? WHERE id = ?", table), time.Now().UTC(), id)
	return err
}
