package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-video-bot/internal/models"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// SQLiteLedger stores the ledger in an embedded SQLite database. It honours
// the same contract as the JSON ledger.
type SQLiteLedger struct {
	db        *sql.DB
	now       func() time.Time
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// OpenSQLite initializes and returns a SQLiteLedger.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}
	// Writes are serialised by the wrapper; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	l := &SQLiteLedger{db: db, now: time.Now}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Infof("[Ledger] SQLite ledger opened at %s", path)
	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		username TEXT,
		downloads INTEGER NOT NULL DEFAULT 0 CHECK (downloads >= 0),
		total_size_mb REAL NOT NULL DEFAULT 0,
		joined TEXT NOT NULL,
		last_active TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_downloads ON users(downloads DESC, seq ASC);
	`
	_, err := l.db.Exec(schema)
	return err
}

const userColumns = "id, seq, first_name, username, downloads, total_size_mb, joined, last_active"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.UserRecord, error) {
	var (
		u                  models.UserRecord
		username           sql.NullString
		joined, lastActive string
	)
	if err := row.Scan(&u.ID, &u.Seq, &u.FirstName, &username, &u.Downloads, &u.TotalSizeMB, &joined, &lastActive); err != nil {
		return models.UserRecord{}, err
	}
	u.Username = username.String
	u.Joined = parseTimestamp(joined)
	u.LastActive = parseTimestamp(lastActive)
	return u, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (l *SQLiteLedger) Touch(id int64, firstName, username string) (bool, error) {
	l.Lock()
	defer l.Unlock()
	if l.closed {
		return false, ErrClosed
	}

	now := l.now().Format(time.RFC3339Nano)
	tx, err := l.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up user %d: %w", id, err)
	}

	if exists {
		_, err = tx.Exec(`UPDATE users SET last_active = ?,
			first_name = CASE WHEN ? != '' THEN ? ELSE first_name END,
			username = COALESCE(?, username)
			WHERE id = ?`, now, firstName, firstName, nullableString(username), id)
		if err != nil {
			return false, fmt.Errorf("failed to touch user %d: %w", id, err)
		}
		return false, tx.Commit()
	}

	_, err = tx.Exec(`INSERT INTO users (id, seq, first_name, username, downloads, total_size_mb, joined, last_active)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM users), ?, ?, 0, 0, ?, ?)`,
		id, firstName, nullableString(username), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert user %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit new user %d: %w", id, err)
	}
	log.Debugf("[Ledger] New user %d (%s)", id, firstName)
	return true, nil
}

func (l *SQLiteLedger) RecordDownload(id int64, sizeMB float64) error {
	l.Lock()
	defer l.Unlock()
	if l.closed {
		return ErrClosed
	}

	res, err := l.db.Exec(`UPDATE users SET downloads = downloads + 1, total_size_mb = total_size_mb + ?, last_active = ? WHERE id = ?`,
		sizeMB, l.now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to record download for %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (l *SQLiteLedger) Get(id int64) (models.UserRecord, error) {
	l.RLock()
	defer l.RUnlock()
	if l.closed {
		return models.UserRecord{}, ErrClosed
	}

	u, err := scanUser(l.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return u, err
}

func (l *SQLiteLedger) query(q string, args ...any) ([]models.UserRecord, error) {
	l.RLock()
	defer l.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (l *SQLiteLedger) All() ([]models.UserRecord, error) {
	return l.query("SELECT " + userColumns + " FROM users ORDER BY seq ASC")
}

func (l *SQLiteLedger) Top(n int) ([]models.UserRecord, error) {
	if n < 0 {
		n = -1
	}
	return l.query("SELECT "+userColumns+" FROM users ORDER BY downloads DESC, seq ASC LIMIT ?", n)
}

func (l *SQLiteLedger) Snapshot() (models.Stats, error) {
	l.RLock()
	defer l.RUnlock()
	if l.closed {
		return models.Stats{}, ErrClosed
	}

	var stats models.Stats
	err := l.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(total_size_mb), 0) FROM users").
		Scan(&stats.TotalUsers, &stats.TotalDownloads, &stats.TotalSizeMB)
	return stats, err
}

// Close safely closes the database connection.
func (l *SQLiteLedger) Close() error {
	l.closeOnce.Do(func() {
		l.Lock()
		defer l.Unlock()

		l.closeErr = l.db.Close()
		l.closed = true

		if l.closeErr != nil {
			log.Errorf("[Ledger] Error during database close operation: %v", l.closeErr)
		} else {
			log.Info("[Ledger] Database closed successfully.")
		}
	})
	return l.closeErr
}
