package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/observability/logging"
)

// Searcher runs ranked queries against an index.
type Searcher interface {
	Query(ctx context.Context, index, query string, hitsPerPage int) (ResultSet, error)
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Index        string
	HitsPerPage  int
	PollInterval time.Duration
}

// Tracker owns the authoritative latest result set of one session.
// Queries are issued asynchronously; a response never replaces the result
// of a query that was issued after it.
type Tracker struct {
	searcher Searcher
	cfg      TrackerConfig
	clock    clockwork.Clock
	logger   zerolog.Logger

	mu      sync.RWMutex
	seq     uint64
	applied uint64
	current ResultSet
	err     error
	wg      sync.WaitGroup
}

// NewTracker creates a tracker. A nil clock uses the real clock.
func NewTracker(searcher Searcher, cfg TrackerConfig, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Tracker{
		searcher: searcher,
		cfg:      cfg,
		clock:    clock,
		logger:   logging.WithComponent("search-tracker"),
	}
}

// Refine issues query in the background.
func (t *Tracker) Refine(ctx context.Context, query string) {
	query = strings.TrimSpace(query)

	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		rs, err := t.searcher.Query(ctx, t.cfg.Index, query, t.cfg.HitsPerPage)

		t.mu.Lock()
		defer t.mu.Unlock()
		if seq <= t.applied {
			return
		}
		if err != nil {
			t.err = err
			t.logger.Warn().Err(err).Str("query", query).Msg("Search query failed")
			return
		}
		rs.Query = query
		t.applied = seq
		t.current = rs
		t.err = nil
	}()
}

// Current returns the latest applied result set.
func (t *Tracker) Current() ResultSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Err returns the error of the latest failed query, if no newer result arrived since.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Await polls until the current result set belongs to query or timeout
// elapses. It returns the current result set either way, and whether it
// matched.
func (t *Tracker) Await(ctx context.Context, query string, timeout time.Duration) (ResultSet, bool) {
	query = strings.TrimSpace(query)
	start := t.clock.Now()

	for {
		rs := t.Current()
		if rs.Query == query {
			return rs, true
		}
		if t.clock.Since(start) >= timeout {
			return rs, false
		}
		select {
		case <-ctx.Done():
			return rs, false
		case <-t.clock.After(t.cfg.PollInterval):
		}
	}
}

// Wait blocks until all issued queries have completed. Used on shutdown and in tests.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
