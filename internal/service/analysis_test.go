package service

import (
	"context"
	"testing"

	"stockpulse-backend/internal/repository"
	"stockpulse-backend/internal/sentiment"
	"stockpulse-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	results map[string]*sentiment.Result
	calls   []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) *sentiment.Result {
	f.calls = append(f.calls, text)
	return f.results[text]
}

func newTestService(analyzer Analyzer) *AnalysisService {
	cache := repository.NewCacheRepository(store.NewMemoryStore(), repository.KindSentiment, 7, nil)
	return NewAnalysisService(cache, analyzer, nil, nil)
}

func TestAnalyze_CachesFreshResult(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*sentiment.Result{
		"record profits": {Sentiment: 0.9, Confidence: 0.95, Label: "positive"},
	}}
	svc := newTestService(analyzer)
	ctx := context.Background()

	entry, err := svc.Analyze(ctx, "ACME", "record profits")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 0.9, entry.Score)
	assert.Equal(t, "ACME", entry.Subject)
	assert.NotZero(t, entry.AnalyzedAt)

	// second call answers from cache without re-invoking the analyzer
	again, err := svc.Analyze(ctx, "ACME", "record profits")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, entry.Fingerprint, again.Fingerprint)
	assert.Len(t, analyzer.calls, 1)
}

func TestAnalyze_NoSignalIsNotCached(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*sentiment.Result{}}
	svc := newTestService(analyzer)
	ctx := context.Background()

	entry, err := svc.Analyze(ctx, "ACME", "unreadable text")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// absence of signal is retried, not remembered
	_, err = svc.Analyze(ctx, "ACME", "unreadable text")
	require.NoError(t, err)
	assert.Len(t, analyzer.calls, 2)
}

func TestAnalyzeBatch_SkipsCachedAndDeduplicates(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*sentiment.Result{
		"headline a": {Sentiment: 0.5, Label: "positive"},
		"headline b": {Sentiment: -0.3, Label: "negative"},
	}}
	svc := newTestService(analyzer)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, "ACME", "headline a")
	require.NoError(t, err)
	analyzer.calls = nil

	entries, err := svc.AnalyzeBatch(ctx, "ACME", []string{"headline a", "headline b", "headline b"})
	require.NoError(t, err)

	// only the uncached, deduplicated text reached the analyzer
	assert.Equal(t, []string{"headline b"}, analyzer.calls)
	assert.Len(t, entries, 2)
}

func TestAnalyzeBatch_OmitsTextsWithoutSignal(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*sentiment.Result{
		"scored": {Sentiment: 0.1, Label: "neutral"},
	}}
	svc := newTestService(analyzer)

	entries, err := svc.AnalyzeBatch(context.Background(), "ACME", []string{"scored", "unscored"})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, repository.Fingerprint("scored"), entries[0].Fingerprint)

	// the unscored text stays uncached
	history, err := svc.History(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAnalyzeBatch_EmptyInput(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	svc := newTestService(analyzer)

	entries, err := svc.AnalyzeBatch(context.Background(), "ACME", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, analyzer.calls)
}
