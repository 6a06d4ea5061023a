package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-video-bot/internal/models"
)

// Ledger backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	// ErrNotFound is returned when a user id has no ledger entry.
	ErrNotFound = errors.New("user not found")
	ErrClosed   = errors.New("ledger is closed")
)

// Ledger stores per-user usage counters. Implementations serialise every
// mutation together with its persistence.
type Ledger interface {
	// Touch creates the record on first contact and refreshes LastActive on
	// every later one. It reports whether the record was created.
	Touch(id int64, firstName, username string) (bool, error)
	// RecordDownload adds one download of sizeMB to an existing record.
	RecordDownload(id int64, sizeMB float64) error
	Get(id int64) (models.UserRecord, error)
	// All returns every record in insertion order.
	All() ([]models.UserRecord, error)
	Snapshot() (models.Stats, error)
	// Top returns at most n records by downloads, ties kept in insertion order.
	Top(n int) ([]models.UserRecord, error)
	Close() error
}

// Open returns the ledger backend selected in cfg.
func Open(cfg models.LedgerConfig) (Ledger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendJSON:
		return OpenJSON(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

func sortBySeq(users []models.UserRecord) {
	sort.Slice(users, func(i, j int) bool { return users[i].Seq < users[j].Seq })
}

// rankTop orders users by downloads descending; equal counts keep
// insertion order.
func rankTop(users []models.UserRecord, n int) []models.UserRecord {
	sortBySeq(users)
	sort.SliceStable(users, func(i, j int) bool { return users[i].Downloads > users[j].Downloads })
	if n >= 0 && n < len(users) {
		users = users[:n]
	}
	return users
}

func summarize(users []models.UserRecord) models.Stats {
	stats := models.Stats{TotalUsers: len(users)}
	for _, u := range users {
		stats.TotalDownloads += u.Downloads
		stats.TotalSizeMB += u.TotalSizeMB
	}
	return stats
}
