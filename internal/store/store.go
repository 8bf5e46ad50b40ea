// Package store provides bounded in-memory retention of finalized spans
// with query support.
//
// The store is append-mostly: spans are never mutated after insertion, and
// the only removals are bulk eviction of the oldest spans once the cleanup
// threshold is crossed, and an explicit Clear. Both happen under the write
// lock, so a concurrent reader sees either the pre- or post-eviction state.
package store

import (
	"sort"
	"sync"

	"github.com/fnscope/fnscope/internal/trace"
	"go.uber.org/zap"
)

const (
	// DefaultMaxSpans is the hard retention cap.
	DefaultMaxSpans = 10000

	// DefaultCleanupThreshold is the fill fraction that triggers eviction.
	DefaultCleanupThreshold = 0.85

	// evictFraction is the share of retained spans dropped per eviction.
	evictFraction = 0.20
)

// Config bounds the store.
type Config struct {
	MaxSpans         int
	CleanupThreshold float64
}

// DefaultConfig returns production retention bounds.
func DefaultConfig() Config {
	return Config{
		MaxSpans:         DefaultMaxSpans,
		CleanupThreshold: DefaultCleanupThreshold,
	}
}

// Recorder receives store lifecycle counts. The monitoring package
// implements this; a nil recorder disables instrumentation.
type Recorder interface {
	SpanRecorded()
	SpansEvicted(count int)
	StoreSize(size int)
}

// Statistics is a freshly computed summary of current store contents.
type Statistics struct {
	TotalSpans      int     `json:"totalSpans"`
	TotalTraces     int     `json:"totalTraces"`
	TotalFunctions  int     `json:"totalFunctions"`
	OldestSpan      int64   `json:"oldestSpan"`
	NewestSpan      int64   `json:"newestSpan"`
	AverageDuration float64 `json:"averageDuration"`
}

// Store holds finalized spans. It implements trace.Sink.
type Store struct {
	cfg      Config
	logger   *zap.Logger
	recorder Recorder

	mu    sync.RWMutex
	spans []*trace.Span

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(*trace.Span)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for eviction reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// New creates a store with the given bounds. Zero or negative config values
// fall back to defaults.
func New(cfg Config, opts ...Option) *Store {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultMaxSpans
	}
	if cfg.CleanupThreshold <= 0 || cfg.CleanupThreshold > 1 {
		cfg.CleanupThreshold = DefaultCleanupThreshold
	}
	s := &Store{
		cfg:    cfg,
		logger: zap.NewNop(),
		subs:   make(map[int]func(*trace.Span)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a finalized span. It never fails and never blocks behind
// queries for long: eviction is amortized at the cleanup threshold, not
// performed on every insert near the cap.
func (s *Store) Add(span *trace.Span) {
	s.mu.Lock()
	s.spans = append(s.spans, span)
	if len(s.spans) >= int(float64(s.cfg.MaxSpans)*s.cfg.CleanupThreshold) {
		s.evictLocked()
	}
	size := len(s.spans)
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SpanRecorded()
		s.recorder.StoreSize(size)
	}
	s.notify(span)
}

// evictLocked drops the oldest spans by start time. Caller holds the write
// lock.
func (s *Store) evictLocked() {
	drop := int(float64(len(s.spans)) * evictFraction)
	if drop < 1 {
		drop = 1
	}

	// Spans arrive in finalize order, which can trail start order when
	// async calls interleave; restore start order before dropping.
	sort.SliceStable(s.spans, func(i, j int) bool {
		return s.spans[i].StartTime < s.spans[j].StartTime
	})

	remaining := len(s.spans) - drop
	kept := make([]*trace.Span, remaining)
	copy(kept, s.spans[drop:])
	s.spans = kept

	s.logger.Debug("evicted oldest spans",
		zap.Int("dropped", drop),
		zap.Int("remaining", remaining),
	)
	if s.recorder != nil {
		s.recorder.SpansEvicted(drop)
	}
}

// All returns spans ordered by ascending start time. With a positive limit,
// only the most recent limit spans are returned.
func (s *Store) All(limit int) []*trace.Span {
	s.mu.RLock()
	out := s.sortedSnapshotLocked()
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ByTraceID returns the spans of one trace, ordered by start time.
func (s *Store) ByTraceID(traceID string) []*trace.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*trace.Span
	for _, sp := range s.spans {
		if string(sp.TraceID) == traceID {
			out = append(out, sp)
		}
	}
	sortByStart(out)
	return out
}

// ByName returns spans whose logical name matches, ordered by start time.
func (s *Store) ByName(name string) []*trace.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*trace.Span
	for _, sp := range s.spans {
		if sp.Name == name {
			out = append(out, sp)
		}
	}
	sortByStart(out)
	return out
}

// ByTimeRange returns spans that start at or after start and end at or
// before end, ordered by start time.
func (s *Store) ByTimeRange(start, end int64) []*trace.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*trace.Span
	for _, sp := range s.spans {
		if sp.StartTime >= start && sp.EndTime <= end {
			out = append(out, sp)
		}
	}
	sortByStart(out)
	return out
}

// TraceIDs returns distinct trace ids whose spans intersect the optional
// time window (zero start or end leaves that side open), ordered
// newest-first by each trace's earliest span. A positive limit caps the
// result.
func (s *Store) TraceIDs(start, end int64, limit int) []string {
	s.mu.RLock()
	earliest := make(map[string]int64)
	for _, sp := range s.spans {
		if start > 0 && sp.EndTime < start {
			continue
		}
		if end > 0 && sp.StartTime > end {
			continue
		}
		key := string(sp.TraceID)
		if cur, ok := earliest[key]; !ok || sp.StartTime < cur {
			earliest[key] = sp.StartTime
		}
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(earliest))
	for traceID := range earliest {
		ids = append(ids, traceID)
	}
	sort.Slice(ids, func(i, j int) bool {
		if earliest[ids[i]] != earliest[ids[j]] {
			return earliest[ids[i]] > earliest[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// Statistics computes a summary of the current contents. All fields are
// zero (not NaN) when the store is empty.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{TotalSpans: len(s.spans)}
	if len(s.spans) == 0 {
		return stats
	}

	traces := make(map[string]struct{})
	names := make(map[string]struct{})
	var totalDuration int64
	stats.OldestSpan = s.spans[0].StartTime
	stats.NewestSpan = s.spans[0].StartTime

	for _, sp := range s.spans {
		traces[string(sp.TraceID)] = struct{}{}
		names[sp.Name] = struct{}{}
		totalDuration += sp.Duration
		if sp.StartTime < stats.OldestSpan {
			stats.OldestSpan = sp.StartTime
		}
		if sp.StartTime > stats.NewestSpan {
			stats.NewestSpan = sp.StartTime
		}
	}

	stats.TotalTraces = len(traces)
	stats.TotalFunctions = len(names)
	stats.AverageDuration = float64(totalDuration) / float64(len(s.spans))
	return stats
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.spans = nil
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.StoreSize(0)
	}
}

// Size returns the current span count.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spans)
}

// Subscribe registers fn to be called for every span added after this
// point. The returned function cancels the subscription. Callbacks run on
// the adding goroutine and must not block.
func (s *Store) Subscribe(fn func(*trace.Span)) (cancel func()) {
	s.subMu.Lock()
	subID := s.nextID
	s.nextID++
	s.subs[subID] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, subID)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(span *trace.Span) {
	s.subMu.Lock()
	fns := make([]func(*trace.Span), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(span)
	}
}

// sortedSnapshotLocked copies the span slice sorted by start time. Caller
// holds at least the read lock.
func (s *Store) sortedSnapshotLocked() []*trace.Span {
	out := make([]*trace.Span, len(s.spans))
	copy(out, s.spans)
	sortByStart(out)
	return out
}

func sortByStart(spans []*trace.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartTime < spans[j].StartTime
	})
}
