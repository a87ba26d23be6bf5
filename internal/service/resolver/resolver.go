// Package resolver decides, for a submitted query, whether a cached agent
// answer can be replayed or the live agent must be invoked, and keeps the
// suggestion cache consistent with the latest search results.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"voice-search-assistant/internal/idset"
	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/observability/metrics"
	"voice-search-assistant/internal/service/search"
	"voice-search-assistant/internal/service/suggestion"
)

// Decision is the branch taken for a submission.
type Decision string

const (
	DecisionSkipped Decision = "skipped"
	DecisionExact   Decision = "exact"
	DecisionNear    Decision = "near"
	DecisionMiss    Decision = "miss"
)

// Search is the authoritative result-set holder.
type Search interface {
	Refine(ctx context.Context, query string)
	Await(ctx context.Context, query string, timeout time.Duration) (search.ResultSet, bool)
}

// Agent is the conversation the resolver appends to.
type Agent interface {
	Replay(ctx context.Context, query string, output models.ToolOutput)
	Send(ctx context.Context, text string, onToolOutput func(models.ToolOutput)) error
}

// Config tunes the resolver.
type Config struct {
	TopK           int
	DriftTolerance int
	SearchTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopK:           5,
		DriftTolerance: 1,
		SearchTimeout:  600 * time.Millisecond,
	}
}

// Outcome describes what a Resolve call did.
type Outcome struct {
	Query         string   `json:"query"`
	Decision      Decision `json:"decision"`
	ObjectIDs     []string `json:"objectIds"`
	SearchMatched bool     `json:"searchMatched"`
}

type Resolver struct {
	cfg     Config
	search  Search
	store   suggestion.Store
	agent   Agent
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// New creates a resolver. A nil clock uses the real clock.
func New(cfg Config, s Search, store suggestion.Store, agent Agent, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultConfig().SearchTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.DriftTolerance < 0 {
		cfg.DriftTolerance = 0
	}
	return &Resolver{
		cfg:     cfg,
		search:  s,
		store:   store,
		agent:   agent,
		clock:   clock,
		metrics: metrics.DefaultMetrics,
	}
}

// Resolve runs one submission: search wait, cache lookup, decision, cache
// write and agent call. The returned error is non-nil only when the agent
// call failed.
func (r *Resolver) Resolve(ctx context.Context, sessionID, query string) (Outcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Outcome{Decision: DecisionSkipped}, nil
	}
	logger := logging.WithQuery(sessionID, query)

	start := r.clock.Now()
	r.search.Refine(ctx, query)
	rs, matched := r.search.Await(ctx, query, r.cfg.SearchTimeout)
	r.metrics.RecordSearchWait(r.clock.Since(start).Seconds(), matched)
	if !matched {
		logger.Warn().Str("resultQuery", rs.Query).Msg("Search did not settle in time, using current results")
	}

	fresh := idset.TopK(rs.IDs(), r.cfg.TopK)
	out := Outcome{Query: query, ObjectIDs: fresh, SearchMatched: matched}

	cached, err := r.store.Get(ctx, query)
	if err != nil && !errors.Is(err, suggestion.ErrNotFound) {
		r.metrics.RecordStoreError("get")
		logger.Warn().Err(err).Msg("Suggestion lookup failed, treating as uncached")
	}
	if err != nil {
		cached = suggestion.Suggestion{}
	}

	out.Decision = Decide(cached.ResultObjectIDs, fresh, cached.CachedOutput != nil, r.cfg.DriftTolerance)
	r.metrics.RecordDecision(string(out.Decision))
	logger.Info().Str("decision", string(out.Decision)).Strs("objectIds", fresh).Msg("Submission resolved")

	switch out.Decision {
	case DecisionExact:
		r.agent.Replay(ctx, query, *cached.CachedOutput)
		return out, nil

	case DecisionNear:
		r.upsert(ctx, query, suggestion.Patch{ResultObjectIDs: fresh})
		r.agent.Replay(ctx, query, *cached.CachedOutput)
		return out, nil
	}

	r.upsert(ctx, query, suggestion.Patch{ResultObjectIDs: fresh})
	err = r.agent.Send(ctx, FormatPrompt(query, itemsFor(rs.Items, fresh)), func(o models.ToolOutput) {
		r.upsert(ctx, query, suggestion.Patch{CachedOutput: &o})
	})
	if err != nil {
		return out, fmt.Errorf("resolve %q: %w", query, err)
	}
	return out, nil
}

func (r *Resolver) upsert(ctx context.Context, query string, patch suggestion.Patch) {
	if err := r.store.Upsert(ctx, query, patch); err != nil {
		r.metrics.RecordStoreError("upsert")
		l := logging.WithComponent("resolver")
		l.Warn().Err(err).Str("query", query).Msg("Suggestion upsert failed")
	}
}

// itemsFor returns the first item for each id, in ids order.
func itemsFor(items []models.Item, ids []string) []models.Item {
	byID := make(map[string]models.Item, len(items))
	for _, it := range items {
		if _, ok := byID[it.ObjectID]; !ok {
			byID[it.ObjectID] = it
		}
	}
	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// Decide compares the cached and fresh ID sets. Without a cached output the
// result is always a miss. tolerance bounds how many IDs may differ on each
// side for a near match.
func Decide(cached, fresh []string, hasOutput bool, tolerance int) Decision {
	if !hasOutput {
		return DecisionMiss
	}
	if idset.EqualIgnoreOrder(cached, fresh) {
		return DecisionExact
	}
	onlyCached, onlyFresh := idset.Diff(cached, fresh)
	if len(onlyCached) <= tolerance && len(onlyFresh) <= tolerance {
		return DecisionNear
	}
	return DecisionMiss
}

// FormatPrompt builds the message sent to the agent on a cache miss.
func FormatPrompt(query string, items []models.Item) string {
	if len(items) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nTop results:")
	for i, it := range items {
		title := it.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "\n%d. %s (objectID: %s)", i+1, title, it.ObjectID)
	}
	return b.String()
}
