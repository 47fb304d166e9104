// Package attempts tracks recent failed logins per identity key.
package attempts

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultThreshold = 5
	DefaultWindow    = 15 * time.Minute
	DefaultShards    = 32
)

// Record is the failure state for one key.
type Record struct {
	Key          string
	FailureCount int
	WindowStart  time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// Tracker counts failed logins per key. A record whose window started more than
// Window ago is treated as absent. Each key maps to exactly one shard so operations
// on the same key are serialized while distinct keys rarely contend.
type Tracker struct {
	threshold int
	window    time.Duration
	shards    []*shard
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the failure count at which a key counts as exceeded.
func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithWindow sets the retention window measured from the last failure.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithShards sets the number of lock stripes.
func WithShards(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.shards = newShards(n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		shards:    newShards(DefaultShards),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{records: make(map[string]*Record)}
	}
	return shards
}

func (t *Tracker) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// live returns the record for key, dropping it if it has expired. Caller holds s.mu.
func (t *Tracker) live(s *shard, key string, now time.Time) *Record {
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	if now.Sub(rec.WindowStart) > t.window {
		delete(s.records, key)
		return nil
	}
	return rec
}

// RecordFailure increments the failure count for key and restarts its window.
func (t *Tracker) RecordFailure(key string) {
	s := t.shardFor(key)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := t.live(s, key, now)
	if rec == nil {
		rec = &Record{Key: key}
		s.records[key] = rec
	}
	rec.FailureCount++
	rec.WindowStart = now
}

// HasExceededMaxAttempts reports whether key has at least Threshold live failures.
func (t *Tracker) HasExceededMaxAttempts(key string) bool {
	s := t.shardFor(key)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := t.live(s, key, now)
	return rec != nil && rec.FailureCount >= t.threshold
}

// Failures returns the live failure count for key.
func (t *Tracker) Failures(key string) int {
	s := t.shardFor(key)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := t.live(s, key, now); rec != nil {
		return rec.FailureCount
	}
	return 0
}

// Evict removes any record for key.
func (t *Tracker) Evict(key string) {
	s := t.shardFor(key)

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
}

// Snapshot returns a copy of the live record for key.
func (t *Tracker) Snapshot(key string) (Record, bool) {
	s := t.shardFor(key)
	now := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := t.live(s, key, now)
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// Threshold returns the configured failure threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Sweep deletes every expired record and returns how many were removed.
func (t *Tracker) Sweep() int {
	now := t.now()
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, rec := range s.records {
			if now.Sub(rec.WindowStart) > t.window {
				delete(s.records, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored records, expired ones included.
func (t *Tracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Run sweeps expired records every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.window
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("Swept expired login attempt records", zap.Int("removed", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
