// Package orchestrator composes the aggregator, the snapshot cache and the
// refresh quota into one state machine with a status surface.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/textileio/go-threads/broadcast"
	"golang.org/x/sync/singleflight"

	"metalsync/internal/aggregate"
	"metalsync/internal/cache"
	"metalsync/internal/clock"
	"metalsync/internal/logging"
	"metalsync/internal/provider"
	"metalsync/internal/quota"
)

// publishTimeout bounds how long a status waits for room in a listener's
// buffer. A listener that stays full for longer misses that status.
const publishTimeout = 250 * time.Millisecond

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	src        provider.Source
	cache      *cache.Store
	quota      *quota.Limiter
	ttl        time.Duration
	credential string
	symbols    []provider.Symbol
	clock      clock.Clock
	log        logrus.FieldLogger

	loads singleflight.Group

	mu            sync.Mutex
	status        Status
	firstLoadDone bool
	manual        bool
	closed        bool

	// pubMu keeps published statuses in the order they were taken.
	pubMu sync.Mutex
	bc    *broadcast.Broadcaster
}

type Option func(*Orchestrator)

func WithTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCredential sets the credential passed to every source call.
func WithCredential(c string) Option {
	return func(o *Orchestrator) { o.credential = c }
}

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithSymbols overrides the fetched symbols. Order is irrelevant: results
// always follow the fixed enumeration.
func WithSymbols(symbols ...provider.Symbol) Option {
	return func(o *Orchestrator) {
		if len(symbols) > 0 {
			o.symbols = append([]provider.Symbol(nil), symbols...)
		}
	}
}

func New(src provider.Source, c *cache.Store, q *quota.Limiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		src:     src,
		cache:   c,
		quota:   q,
		ttl:     cache.DefaultTTL,
		symbols: provider.Symbols(),
		clock:   clock.Real{},
		log:     logging.Discard(),
		bc:      broadcast.NewBroadcaster(16),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithField("component", "orchestrator")

	loading := make(map[string]bool, len(o.symbols))
	for _, s := range o.symbols {
		loading[s.ID()] = false
	}
	o.status = Status{
		Phase:              PhaseIdle,
		Quotes:             []provider.Quote{},
		Loading:            loading,
		RemainingRefreshes: q.Limit(),
		RefreshLimit:       q.Limit(),
	}
	return o
}

// Start seeds the quota counters and performs the initial passive load.
func (o *Orchestrator) Start(ctx context.Context) Status {
	st := o.quota.Read(ctx)
	o.update(func(s *Status) { o.applyQuota(s, st) })
	return o.RequestPassiveLoad(ctx)
}

// Restore seeds the quota counters and adopts the persisted snapshot
// whatever its age. It never calls the source, so a forced refresh can
// follow without a passive round spending upstream requests first.
func (o *Orchestrator) Restore(ctx context.Context) Status {
	st := o.quota.Read(ctx)
	snap, ok := o.cache.Load(ctx)
	o.update(func(s *Status) {
		o.applyQuota(s, st)
		if ok {
			adopt(s, snap)
			o.firstLoadDone = true
		}
	})
	return o.Status()
}

// RequestPassiveLoad prefers a fresh cached snapshot and otherwise fetches
// without touching the quota. Concurrent calls share one execution.
func (o *Orchestrator) RequestPassiveLoad(ctx context.Context) Status {
	_, _, _ = o.loads.Do("passive", func() (any, error) {
		o.cycle(ctx, false)
		return nil, nil
	})
	return o.Status()
}

// RequestManualRefresh spends one quota unit and fetches from the network.
// It is declined without any network call when the quota is exhausted or
// another manual refresh is still running.
func (o *Orchestrator) RequestManualRefresh(ctx context.Context) RefreshResult {
	o.mu.Lock()
	if o.manual {
		res := RefreshResult{Remaining: o.status.RemainingRefreshes, Reason: ReasonInFlight}
		if o.status.ResetAt != nil {
			res.ResetAt = *o.status.ResetAt
		}
		o.mu.Unlock()
		o.log.Debug("manual refresh already in flight; declined")
		return res
	}
	o.manual = true
	o.status.Refreshing = true
	o.status.Phase = o.phaseLocked()
	o.mu.Unlock()
	o.publish()

	defer o.update(func(s *Status) {
		o.manual = false
		s.Refreshing = false
	})

	st, ok := o.quota.TryConsume(ctx)
	remaining := o.quota.Remaining(st)
	if !ok {
		msg := fmt.Sprintf("refresh limit reached (%d per %s); try again after %s",
			o.quota.Limit(), formatWindow(o.quota.Window()), st.ResetAt.UTC().Format(time.RFC3339))
		o.update(func(s *Status) {
			o.applyQuota(s, st)
			s.Error = msg
		})
		o.log.WithField("reset_at", st.ResetAt.UTC().Format(time.RFC3339)).Info("manual refresh declined by quota")
		return RefreshResult{Remaining: 0, ResetAt: st.ResetAt, Reason: ReasonQuotaExceeded}
	}

	o.update(func(s *Status) { o.applyQuota(s, st) })
	o.cycle(ctx, true)
	return RefreshResult{Allowed: true, Remaining: remaining, ResetAt: st.ResetAt}
}

// Status returns a deep copy; callers may mutate it freely.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.clone()
}

// Subscribe returns a listener that receives a Status after every change.
// Statuses are delivered in order as long as the listener keeps up; one
// that falls more than its buffer behind for publishTimeout loses the
// status being sent. Close closes the channel after the last status.
// Discard the listener when no longer needed.
func (o *Orchestrator) Subscribe() *broadcast.Listener {
	return o.bc.Listen()
}

// Close stops status broadcasting and closes every listener channel.
func (o *Orchestrator) Close() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	o.mu.Lock()
	already := o.closed
	o.closed = true
	o.mu.Unlock()
	if !already {
		o.bc.Discard()
	}
}

// cycle runs one load. force skips the cache check.
func (o *Orchestrator) cycle(ctx context.Context, force bool) {
	log := o.log.WithFields(logrus.Fields{"cycle": uuid.NewString(), "forced": force})

	o.update(func(s *Status) {
		s.Error = ""
		for id := range s.Loading {
			s.Loading[id] = true
		}
		if !o.firstLoadDone {
			s.InitialLoading = true
		}
	})
	defer o.update(func(s *Status) {
		o.firstLoadDone = true
		s.InitialLoading = false
		for id := range s.Loading {
			s.Loading[id] = false
		}
	})

	if !force {
		if snap, ok := o.cache.Load(ctx); ok && o.cache.IsFresh(snap, o.ttl) {
			log.WithField("captured_at", snap.CapturedAt.UTC().Format(time.RFC3339)).Debug("using fresh cached snapshot")
			o.update(func(s *Status) { adopt(s, snap) })
			return
		}
	}

	start := o.clock.Now()
	res := aggregate.FetchAll(ctx, o.src, o.symbols, o.credential)
	fields := logrus.Fields{"ok": len(res.OK), "failed": len(res.Failed), "took": o.clock.Now().Sub(start).String()}

	if res.TotalFailure() {
		log.WithFields(fields).WithError(res.Err()).Warn("fetch round failed entirely")
		o.fallback(ctx, res.Err())
		return
	}
	if res.Errors != nil {
		log.WithFields(fields).WithError(res.Errors).Warn("some symbols failed")
	}

	snap := provider.Snapshot{Quotes: res.OK, CapturedAt: o.clock.Now()}
	o.cache.Save(ctx, snap)
	o.update(func(s *Status) {
		adopt(s, snap)
		if len(res.Failed) > 0 {
			s.Error = "some symbols failed: " + strings.Join(res.FailedIDs(), ", ")
		}
	})
	log.WithFields(fields).Info("fetch round complete")
}

// fallback prefers the persisted snapshot, then the one in memory.
func (o *Orchestrator) fallback(ctx context.Context, cause error) {
	if snap, ok := o.cache.Load(ctx); ok {
		o.update(func(s *Status) {
			adopt(s, snap)
			s.Error = "using cached data: " + cause.Error()
		})
		return
	}
	o.update(func(s *Status) {
		if len(s.Quotes) > 0 {
			s.Error = "using cached data: " + cause.Error()
			return
		}
		s.Quotes = []provider.Quote{}
		s.Error = "failed fetching prices and no cache available: " + cause.Error()
	})
}

func adopt(s *Status, snap provider.Snapshot) {
	s.Quotes = snap.Clone().Quotes
	if s.Quotes == nil {
		s.Quotes = []provider.Quote{}
	}
	t := snap.CapturedAt
	s.LastUpdated = &t
}

func (o *Orchestrator) applyQuota(s *Status, st quota.State) {
	s.RemainingRefreshes = o.quota.Remaining(st)
	t := st.ResetAt
	s.ResetAt = &t
}

// update mutates the status under the lock and then publishes it.
func (o *Orchestrator) update(fn func(*Status)) {
	o.mu.Lock()
	fn(&o.status)
	o.status.Phase = o.phaseLocked()
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) phaseLocked() Phase {
	switch {
	case o.status.InitialLoading:
		return PhaseInitialLoading
	case o.status.Refreshing:
		return PhaseRefreshing
	case o.firstLoadDone:
		return PhaseReady
	default:
		return PhaseIdle
	}
}

func (o *Orchestrator) publish() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	st := o.status.clone()
	o.mu.Unlock()
	if err := o.bc.SendWithTimeout(st, publishTimeout); err != nil {
		o.log.WithError(err).WithField("phase", st.Phase).Debug("status not delivered to every listener")
	}
}

func formatWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}
