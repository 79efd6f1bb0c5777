package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"metalsync/internal/clock"
	"metalsync/internal/logging"
	"metalsync/internal/provider"
	"metalsync/internal/store"
)

const (
	DefaultKey = "metals_cache_v1"
	DefaultTTL = 24 * time.Hour
)

// record is the persisted shape: {"quotes": [...], "capturedAt": epoch-ms}.
type record struct {
	Quotes     []provider.Quote `json:"quotes"`
	CapturedAt int64            `json:"capturedAt"`
}

// Store persists the last known-good Snapshot under a single key.
// Nothing from the underlying KV escapes as an error: unreadable data is a
// miss and failed writes are logged.
type Store struct {
	kv    store.KV
	key   string
	clock clock.Clock
	log   logrus.FieldLogger
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

func New(kv store.KV, opts ...Option) *Store {
	s := &Store{kv: kv, key: DefaultKey, clock: clock.Real{}, log: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "cache")
	return s
}

// Load returns the persisted snapshot, or false when there is none or it
// cannot be decoded.
func (s *Store) Load(ctx context.Context) (provider.Snapshot, bool) {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.WithError(err).Warn("snapshot read failed; treating as cache miss")
		return provider.Snapshot{}, false
	}
	if !found || raw == "" {
		return provider.Snapshot{}, false
	}

	var rec *record
	if err := sonic.UnmarshalString(raw, &rec); err != nil {
		s.log.WithError(err).Warn("snapshot is malformed; treating as cache miss")
		return provider.Snapshot{}, false
	}
	if rec == nil || rec.CapturedAt <= 0 {
		s.log.Warn("snapshot has no capture time; treating as cache miss")
		return provider.Snapshot{}, false
	}
	for _, q := range rec.Quotes {
		if err := q.Validate(); err != nil {
			s.log.WithError(err).Warn("snapshot holds an invalid quote; treating as cache miss")
			return provider.Snapshot{}, false
		}
	}

	quotes := rec.Quotes
	if quotes == nil {
		quotes = []provider.Quote{}
	}
	return provider.Snapshot{Quotes: quotes, CapturedAt: time.UnixMilli(rec.CapturedAt)}, true
}

// Save overwrites the persisted snapshot.
func (s *Store) Save(ctx context.Context, snap provider.Snapshot) {
	rec := record{Quotes: snap.Quotes, CapturedAt: snap.CapturedAt.UnixMilli()}
	if rec.Quotes == nil {
		rec.Quotes = []provider.Quote{}
	}
	raw, err := sonic.MarshalString(rec)
	if err != nil {
		s.log.WithError(err).Warn("snapshot encode failed; not persisted")
		return
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		s.log.WithError(err).Warn("snapshot write failed; keeping in-memory state only")
		return
	}
	s.log.WithField("quotes", len(rec.Quotes)).Debug("snapshot saved")
}

// IsFresh reports whether snap is younger than ttl by the store's clock.
func (s *Store) IsFresh(snap provider.Snapshot, ttl time.Duration) bool {
	return Fresh(snap, ttl, s.clock.Now())
}

// Fresh is true iff now - capturedAt < ttl; an age of exactly ttl is stale.
func Fresh(snap provider.Snapshot, ttl time.Duration, now time.Time) bool {
	return now.Sub(snap.CapturedAt) < ttl
}
