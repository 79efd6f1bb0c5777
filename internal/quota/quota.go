// Package quota counts manual refreshes inside a rolling window that starts
// at the first use after the previous window expired.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"metalsync/internal/clock"
	"metalsync/internal/logging"
	"metalsync/internal/store"
)

const (
	DefaultKey    = "metals_refresh_quota_v1"
	DefaultLimit  = 2
	DefaultWindow = 24 * time.Hour
)

// State is the persisted counter. Count is only meaningful while now is
// before ResetAt.
type State struct {
	Count   int
	ResetAt time.Time
	Version int64
}

type record struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"resetAt"`
	Version int64 `json:"version"`
}

// Limiter gates a scarce action with a count per window. All mutations from
// one process go through mu, so concurrent consumers in the same process
// never under-count.
type Limiter struct {
	kv     store.KV
	key    string
	limit  int
	window time.Duration
	clock  clock.Clock
	log    logrus.FieldLogger

	mu sync.Mutex
}

type Option func(*Limiter)

func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.limit = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

func WithKey(key string) Option {
	return func(l *Limiter) {
		if key != "" {
			l.key = key
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(lg logrus.FieldLogger) Option {
	return func(l *Limiter) { l.log = lg }
}

func New(kv store.KV, opts ...Option) *Limiter {
	l := &Limiter{
		kv:     kv,
		key:    DefaultKey,
		limit:  DefaultLimit,
		window: DefaultWindow,
		clock:  clock.Real{},
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithField("component", "quota")
	return l
}

func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) Window() time.Duration { return l.window }

// Remaining is max(limit - count, 0).
func (l *Limiter) Remaining(st State) int {
	if r := l.limit - st.Count; r > 0 {
		return r
	}
	return 0
}

// Read returns the current state, rewriting it to a fresh window when none
// is stored, it cannot be decoded, or its window has expired.
func (l *Limiter) Read(ctx context.Context) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(ctx)
}

// Consume spends one unit. A window that has already expired rolls over
// first, so the result is {1, now+window}.
func (l *Limiter) Consume(ctx context.Context) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumeLocked(ctx, l.readLocked(ctx))
}

// TryConsume spends one unit only if any remain. It returns the state after
// the call and whether the unit was granted.
func (l *Limiter) TryConsume(ctx context.Context) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.readLocked(ctx)
	if l.Remaining(st) == 0 {
		l.log.WithFields(logrus.Fields{
			"count":    st.Count,
			"reset_at": st.ResetAt.Format(time.RFC3339),
		}).Info("refresh quota exhausted")
		return st, false
	}
	return l.consumeLocked(ctx, st), true
}

func (l *Limiter) readLocked(ctx context.Context) State {
	now := l.clock.Now()
	st, ok := l.load(ctx)
	if !ok {
		return l.persist(ctx, State{Count: 0, ResetAt: now.Add(l.window), Version: st.Version})
	}
	if !now.Before(st.ResetAt) {
		l.log.WithField("expired_at", st.ResetAt.Format(time.RFC3339)).Debug("quota window rolled over")
		return l.persist(ctx, State{Count: 0, ResetAt: now.Add(l.window), Version: st.Version})
	}
	return st
}

func (l *Limiter) consumeLocked(ctx context.Context, st State) State {
	st.Count++
	return l.persist(ctx, st)
}

func (l *Limiter) load(ctx context.Context) (State, bool) {
	raw, found, err := l.kv.Get(ctx, l.key)
	if err != nil {
		l.log.WithError(err).Warn("quota read failed; starting a fresh window")
		return State{}, false
	}
	if !found || raw == "" {
		return State{}, false
	}
	var rec *record
	if err := sonic.UnmarshalString(raw, &rec); err != nil || rec == nil || rec.Count < 0 || rec.ResetAt <= 0 {
		l.log.WithError(err).Warn("quota record is malformed; starting a fresh window")
		return State{}, false
	}
	return State{Count: rec.Count, ResetAt: time.UnixMilli(rec.ResetAt), Version: rec.Version}, true
}

// persist bumps the version and writes st. A failed write is logged and the
// computed state is returned anyway.
func (l *Limiter) persist(ctx context.Context, st State) State {
	st.Version++
	st.ResetAt = time.UnixMilli(st.ResetAt.UnixMilli())
	raw, err := sonic.MarshalString(record{Count: st.Count, ResetAt: st.ResetAt.UnixMilli(), Version: st.Version})
	if err != nil {
		l.log.WithError(err).Warn("quota encode failed; not persisted")
		return st
	}
	if err := l.kv.Set(ctx, l.key, raw); err != nil {
		l.log.WithError(err).Warn("quota write failed; keeping in-memory state only")
	}
	return st
}
