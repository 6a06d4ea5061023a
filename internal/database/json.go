package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go-video-bot/internal/models"

	"github.com/google/renameio/v2"
	log "github.com/sirupsen/logrus"
)

// diskRecord is the on-disk layout of one user, keyed by the decimal id.
// Timestamps are kept as strings so files written without a zone offset
// still load.
type diskRecord struct {
	ID          int64   `json:"id"`
	FirstName   string  `json:"first_name"`
	Username    *string `json:"username"`
	Downloads   int     `json:"downloads"`
	Joined      string  `json:"joined"`
	LastActive  string  `json:"last_active"`
	TotalSizeMB float64 `json:"total_size_mb"`
	Seq         int64   `json:"seq,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func fromDisk(d diskRecord) models.UserRecord {
	u := models.UserRecord{
		ID:          d.ID,
		FirstName:   d.FirstName,
		Downloads:   d.Downloads,
		TotalSizeMB: d.TotalSizeMB,
		Joined:      parseTimestamp(d.Joined),
		LastActive:  parseTimestamp(d.LastActive),
		Seq:         d.Seq,
	}
	if d.Username != nil {
		u.Username = *d.Username
	}
	return u
}

func toDisk(u models.UserRecord) diskRecord {
	d := diskRecord{
		ID:          u.ID,
		FirstName:   u.FirstName,
		Downloads:   u.Downloads,
		TotalSizeMB: u.TotalSizeMB,
		Joined:      u.Joined.Format(time.RFC3339Nano),
		LastActive:  u.LastActive.Format(time.RFC3339Nano),
		Seq:         u.Seq,
	}
	if u.Username != "" {
		name := u.Username
		d.Username = &name
	}
	return d
}

// JSONLedger keeps all users in memory and rewrites the whole file
// atomically after each mutation.
type JSONLedger struct {
	now     func() time.Time
	users   map[int64]*models.UserRecord
	path    string
	nextSeq int64
	mu      sync.Mutex
	closed  bool
}

// OpenJSON loads path, creating an empty ledger when the file is missing.
// An unreadable file is moved aside rather than overwritten.
func OpenJSON(path string) (*JSONLedger, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
		}
	}

	l := &JSONLedger{
		now:     time.Now,
		users:   make(map[int64]*models.UserRecord),
		path:    path,
		nextSeq: 1,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	log.Infof("[Ledger] JSON ledger opened at %s with %d users", path, len(l.users))
	return l, nil
}

func (l *JSONLedger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read ledger %s: %w", l.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc map[string]diskRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", l.path, l.now().Unix())
		log.WithError(err).Warnf("[Ledger] Could not parse %s, moving it to %s and starting empty", l.path, aside)
		if renameErr := os.Rename(l.path, aside); renameErr != nil {
			return fmt.Errorf("failed to move unreadable ledger aside: %w", renameErr)
		}
		return nil
	}

	records := make([]models.UserRecord, 0, len(doc))
	for key, d := range doc {
		if d.ID == 0 {
			if id, err := strconv.ParseInt(key, 10, 64); err == nil {
				d.ID = id
			}
		}
		records = append(records, fromDisk(d))
	}

	// Files written before sequence numbers existed get them from join order.
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Seq != b.Seq {
			if a.Seq == 0 || b.Seq == 0 {
				return b.Seq == 0
			}
			return a.Seq < b.Seq
		}
		if !a.Joined.Equal(b.Joined) {
			return a.Joined.Before(b.Joined)
		}
		return a.ID < b.ID
	})
	for i := range records {
		if records[i].Seq >= l.nextSeq {
			l.nextSeq = records[i].Seq + 1
		}
	}
	for i := range records {
		if records[i].Seq == 0 {
			records[i].Seq = l.nextSeq
			l.nextSeq++
		}
		r := records[i]
		l.users[r.ID] = &r
	}
	return nil
}

// persistLocked writes every record to a temp file and renames it over the
// ledger. Callers hold l.mu.
func (l *JSONLedger) persistLocked() error {
	doc := make(map[string]diskRecord, len(l.users))
	for id, u := range l.users {
		doc[strconv.FormatInt(id, 10)] = toDisk(*u)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(l.path, renameio.WithPermissions(0600))
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func (l *JSONLedger) Touch(id int64, firstName, username string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}

	now := l.now()
	existing, ok := l.users[id]
	if !ok {
		l.users[id] = &models.UserRecord{
			ID:         id,
			FirstName:  firstName,
			Username:   username,
			Joined:     now,
			LastActive: now,
			Seq:        l.nextSeq,
		}
		if err := l.persistLocked(); err != nil {
			delete(l.users, id)
			return false, err
		}
		l.nextSeq++
		log.Debugf("[Ledger] New user %d (%s)", id, firstName)
		return true, nil
	}

	prev := *existing
	existing.LastActive = now
	if firstName != "" {
		existing.FirstName = firstName
	}
	if username != "" {
		existing.Username = username
	}
	if err := l.persistLocked(); err != nil {
		*existing = prev
		return false, err
	}
	return false, nil
}

func (l *JSONLedger) RecordDownload(id int64, sizeMB float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	existing, ok := l.users[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	prev := *existing
	existing.Downloads++
	existing.TotalSizeMB += sizeMB
	existing.LastActive = l.now()
	if err := l.persistLocked(); err != nil {
		*existing = prev
		return err
	}
	return nil
}

func (l *JSONLedger) Get(id int64) (models.UserRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return models.UserRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return *u, nil
}

func (l *JSONLedger) snapshotLocked() []models.UserRecord {
	out := make([]models.UserRecord, 0, len(l.users))
	for _, u := range l.users {
		out = append(out, *u)
	}
	return out
}

func (l *JSONLedger) All() ([]models.UserRecord, error) {
	l.mu.Lock()
	users := l.snapshotLocked()
	l.mu.Unlock()
	sortBySeq(users)
	return users, nil
}

func (l *JSONLedger) Snapshot() (models.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return summarize(l.snapshotLocked()), nil
}

func (l *JSONLedger) Top(n int) ([]models.UserRecord, error) {
	l.mu.Lock()
	users := l.snapshotLocked()
	l.mu.Unlock()
	return rankTop(users, n), nil
}

// Close marks the ledger closed. Every mutation is already on disk.
func (l *JSONLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
