package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/service/search"
	"voice-search-assistant/internal/service/suggestion"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Refine(ctx context.Context, query string) {
	m.Called(ctx, query)
}

func (m *mockSearch) Await(ctx context.Context, query string, timeout time.Duration) (search.ResultSet, bool) {
	args := m.Called(ctx, query, timeout)
	return args.Get(0).(search.ResultSet), args.Bool(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, query string) (suggestion.Suggestion, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(suggestion.Suggestion), args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, query string, patch suggestion.Patch) error {
	args := m.Called(ctx, query, patch)
	return args.Error(0)
}

type mockAgent struct {
	mock.Mock
	outputs []models.ToolOutput
}

func (m *mockAgent) Replay(ctx context.Context, query string, output models.ToolOutput) {
	m.Called(ctx, query, output)
}

func (m *mockAgent) Send(ctx context.Context, text string, onToolOutput func(models.ToolOutput)) error {
	args := m.Called(ctx, text)
	for _, o := range m.outputs {
		onToolOutput(o)
	}
	return args.Error(0)
}

func resultSet(query string, ids ...string) search.ResultSet {
	rs := search.ResultSet{Query: query}
	for _, id := range ids {
		rs.Items = append(rs.Items, models.Item{ObjectID: id, Title: "Title " + id})
	}
	return rs
}

var cachedOutput = &models.ToolOutput{
	ToolName:   "display-items",
	ToolCallID: "call-1",
	Output:     json.RawMessage(`{"response":[{"objectID":"1"}]}`),
}

func newResolver(s Search, st suggestion.Store, a Agent) *Resolver {
	return New(DefaultConfig(), s, st, a, nil)
}

func TestResolve_ExactMatchReplays(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	s.On("Refine", ctx, "shoes").Return()
	s.On("Await", ctx, "shoes", 600*time.Millisecond).Return(resultSet("shoes", "2", "1"), true)
	st.On("Get", ctx, "shoes").Return(suggestion.Suggestion{Query: "shoes", ResultObjectIDs: []string{"1", "2"}, CachedOutput: cachedOutput}, nil)
	a.On("Replay", ctx, "shoes", *cachedOutput).Return()

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "  shoes ")
	require.NoError(t, err)
	require.Equal(t, DecisionExact, out.Decision)
	require.True(t, out.SearchMatched)

	a.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	a.AssertExpectations(t)
}

func TestResolve_NearMatchHealsThenReplays(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	s.On("Refine", ctx, "shoes").Return()
	s.On("Await", ctx, "shoes", mock.Anything).Return(resultSet("shoes", "1", "3"), true)
	st.On("Get", ctx, "shoes").Return(suggestion.Suggestion{ResultObjectIDs: []string{"1", "2"}, CachedOutput: cachedOutput}, nil)
	st.On("Upsert", ctx, "shoes", suggestion.Patch{ResultObjectIDs: []string{"1", "3"}}).Return(nil)
	a.On("Replay", ctx, "shoes", *cachedOutput).Return()

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "shoes")
	require.NoError(t, err)
	require.Equal(t, DecisionNear, out.Decision)

	st.AssertExpectations(t)
	a.AssertExpectations(t)
	a.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestResolve_MissInvokesAgentAndCachesOutput(t *testing.T) {
	ctx := context.Background()
	s, st := &mockSearch{}, &mockStore{}
	a := &mockAgent{outputs: []models.ToolOutput{*cachedOutput}}
	s.On("Refine", ctx, "shoes").Return()
	s.On("Await", ctx, "shoes", mock.Anything).Return(resultSet("shoes", "5", "6"), true)
	st.On("Get", ctx, "shoes").Return(suggestion.Suggestion{ResultObjectIDs: []string{"1", "2"}, CachedOutput: cachedOutput}, nil)
	st.On("Upsert", ctx, "shoes", suggestion.Patch{ResultObjectIDs: []string{"5", "6"}}).Return(nil).Once()
	st.On("Upsert", ctx, "shoes", mock.MatchedBy(func(p suggestion.Patch) bool {
		return p.ResultObjectIDs == nil && p.CachedOutput != nil && p.CachedOutput.ToolCallID == "call-1"
	})).Return(nil).Once()
	a.On("Send", ctx, mock.MatchedBy(func(text string) bool {
		return strings.HasPrefix(text, "shoes") &&
			strings.Contains(text, "1. Title 5 (objectID: 5)") &&
			strings.Contains(text, "2. Title 6 (objectID: 6)")
	})).Return(nil)

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "shoes")
	require.NoError(t, err)
	require.Equal(t, DecisionMiss, out.Decision)
	require.Equal(t, []string{"5", "6"}, out.ObjectIDs)

	st.AssertExpectations(t)
	a.AssertExpectations(t)
}

func TestResolve_StoreErrorTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	s.On("Refine", ctx, "q").Return()
	s.On("Await", ctx, "q", mock.Anything).Return(resultSet("q", "1"), true)
	st.On("Get", ctx, "q").Return(suggestion.Suggestion{}, errors.New("db locked"))
	st.On("Upsert", ctx, "q", mock.Anything).Return(errors.New("db locked"))
	a.On("Send", ctx, mock.Anything).Return(nil)

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "q")
	require.NoError(t, err)
	require.Equal(t, DecisionMiss, out.Decision)
	// A failed cache write is logged and does not stop the agent call.
	st.AssertCalled(t, "Upsert", ctx, "q", mock.Anything)
	a.AssertExpectations(t)
}

func TestResolve_SearchTimeoutUsesCurrentResults(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	s.On("Refine", ctx, "new").Return()
	s.On("Await", ctx, "new", mock.Anything).Return(resultSet("old", "9"), false)
	st.On("Get", ctx, "new").Return(suggestion.Suggestion{}, suggestion.ErrNotFound)
	st.On("Upsert", ctx, "new", suggestion.Patch{ResultObjectIDs: []string{"9"}}).Return(nil)
	a.On("Send", ctx, mock.Anything).Return(nil)

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "new")
	require.NoError(t, err)
	require.False(t, out.SearchMatched)
	require.Equal(t, []string{"9"}, out.ObjectIDs)
}

func TestResolve_AgentFailureReturned(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	boom := errors.New("agent down")
	s.On("Refine", ctx, "q").Return()
	s.On("Await", ctx, "q", mock.Anything).Return(resultSet("q"), true)
	st.On("Get", ctx, "q").Return(suggestion.Suggestion{}, suggestion.ErrNotFound)
	st.On("Upsert", ctx, "q", mock.Anything).Return(nil)
	a.On("Send", ctx, "q").Return(boom).Once()

	out, err := newResolver(s, st, a).Resolve(ctx, "s1", "q")
	require.ErrorIs(t, err, boom)
	require.Equal(t, DecisionMiss, out.Decision)
	a.AssertNumberOfCalls(t, "Send", 1)
}

func TestResolve_EmptyQuerySkipped(t *testing.T) {
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}

	out, err := newResolver(s, st, a).Resolve(context.Background(), "s1", "   ")
	require.NoError(t, err)
	require.Equal(t, DecisionSkipped, out.Decision)
	s.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything)
}

func TestResolve_TopKLimitsIDs(t *testing.T) {
	ctx := context.Background()
	s, st, a := &mockSearch{}, &mockStore{}, &mockAgent{}
	s.On("Refine", ctx, "q").Return()
	s.On("Await", ctx, "q", mock.Anything).Return(resultSet("q", "1", "1", "2", "3"), true)
	st.On("Get", ctx, "q").Return(suggestion.Suggestion{}, suggestion.ErrNotFound)
	st.On("Upsert", ctx, "q", suggestion.Patch{ResultObjectIDs: []string{"1", "2"}}).Return(nil)
	a.On("Send", ctx, mock.Anything).Return(nil)

	r := New(Config{TopK: 2, DriftTolerance: 1}, s, st, a, nil)
	out, err := r.Resolve(ctx, "s1", "q")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, out.ObjectIDs)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		cached    []string
		fresh     []string
		hasOutput bool
		tolerance int
		want      Decision
	}{
		{"exact", []string{"1", "2"}, []string{"2", "1"}, true, 1, DecisionExact},
		{"one drift", []string{"1", "2"}, []string{"1", "3"}, true, 1, DecisionNear},
		{"no overlap", []string{"1", "2"}, []string{"5", "6"}, true, 1, DecisionMiss},
		{"no output", []string{"1", "2"}, []string{"1", "2"}, false, 1, DecisionMiss},
		{"zero tolerance", []string{"1", "2"}, []string{"1", "3"}, true, 0, DecisionMiss},
		{"one added", []string{"1"}, []string{"1", "2"}, true, 1, DecisionNear},
		{"two added", []string{"1"}, []string{"1", "2", "3"}, true, 1, DecisionMiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Decide(tt.cached, tt.fresh, tt.hasOutput, tt.tolerance))
		})
	}
}

func TestFormatPrompt(t *testing.T) {
	require.Equal(t, "retail", FormatPrompt("retail", nil))

	got := FormatPrompt("retail", []models.Item{{ObjectID: "a", Title: "Stores"}, {ObjectID: "b"}})
	require.Equal(t, "retail\n\nTop results:\n1. Stores (objectID: a)\n2. (untitled) (objectID: b)", got)
}
