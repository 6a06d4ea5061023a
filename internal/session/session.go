// Package session keeps the short-lived state that links a link message to
// the later quality choice, and the per-user input mode (support message,
// broadcast text).
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrExpired is returned when a pending link is unknown or past its TTL.
var ErrExpired = errors.New("session entry expired or missing")

// Mode is what the next free-text message from a user means.
type Mode string

const (
	ModeNone      Mode = ""
	ModeSupport   Mode = "support"
	ModeBroadcast Mode = "broadcast"
)

// Store holds pending links and user input modes with explicit expiry.
type Store interface {
	PutURL(ctx context.Context, requestID, url string) error
	GetURL(ctx context.Context, requestID string) (string, error)
	SetMode(ctx context.Context, userID int64, mode Mode) error
	Mode(ctx context.Context, userID int64) (Mode, error)
	ClearMode(ctx context.Context, userID int64) error
	Close() error
}

// Open returns the store selected by cfg.
func Open(cfg models.SessionConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(cfg.TTL()), nil
	case "redis":
		return NewRedisStore(RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, cfg.TTL())
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

type entry struct {
	expires time.Time
	value   string
}

// MemoryStore keeps everything in process memory. Expired entries are
// dropped lazily on access and on every write.
type MemoryStore struct {
	now   func() time.Time
	urls  map[string]entry
	modes map[int64]entry
	ttl   time.Duration
	mu    sync.Mutex
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		urls:  make(map[string]entry),
		modes: make(map[int64]entry),
		ttl:   ttl,
	}
}

func (m *MemoryStore) purgeLocked(now time.Time) {
	for k, e := range m.urls {
		if !now.Before(e.expires) {
			delete(m.urls, k)
		}
	}
	for k, e := range m.modes {
		if !now.Before(e.expires) {
			delete(m.modes, k)
		}
	}
}

func (m *MemoryStore) PutURL(_ context.Context, requestID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.purgeLocked(now)
	if old, ok := m.urls[requestID]; ok && old.value != url {
		log.Warnf("[Session] Request id %s reused for a different URL, keeping the newest", requestID)
	}
	m.urls[requestID] = entry{value: url, expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryStore) GetURL(_ context.Context, requestID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.urls[requestID]
	if !ok || !m.now().Before(e.expires) {
		delete(m.urls, requestID)
		return "", ErrExpired
	}
	return e.value, nil
}

func (m *MemoryStore) SetMode(_ context.Context, userID int64, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.purgeLocked(now)
	if mode == ModeNone {
		delete(m.modes, userID)
		return nil
	}
	m.modes[userID] = entry{value: string(mode), expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Mode(_ context.Context, userID int64) (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modes[userID]
	if !ok || !m.now().Before(e.expires) {
		delete(m.modes, userID)
		return ModeNone, nil
	}
	return Mode(e.value), nil
}

func (m *MemoryStore) ClearMode(ctx context.Context, userID int64) error {
	return m.SetMode(ctx, userID, ModeNone)
}

func (m *MemoryStore) Close() error { return nil }
