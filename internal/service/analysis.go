// Package service coordinates sentiment analysis across the cache, the
// inference client, and the job tracker.
package service

import (
	"context"
	"time"

	"stockpulse-backend/internal/observability"
	"stockpulse-backend/internal/repository"
	"stockpulse-backend/internal/sentiment"

	"go.uber.org/zap"
)

// Analyzer produces a sentiment score for text, or nil when no signal is
// available.
type Analyzer interface {
	Analyze(ctx context.Context, text string) *sentiment.Result
}

// AnalysisService answers sentiment questions cache-first and writes fresh
// results through for reuse.
type AnalysisService struct {
	cache    *repository.CacheRepository
	analyzer Analyzer
	logger   *zap.Logger
	metrics  *observability.Collector
	now      func() time.Time
}

// NewAnalysisService creates the service. The metrics collector may be nil.
func NewAnalysisService(cache *repository.CacheRepository, analyzer Analyzer, logger *zap.Logger, metrics *observability.Collector) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{
		cache:    cache,
		analyzer: analyzer,
		logger:   logger.Named("analysis_service"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Analyze returns the cached score for (subject, text) or computes and caches
// a new one. A nil entry with a nil error means no signal was available;
// absence of signal is never cached, so a later call can try again.
func (s *AnalysisService) Analyze(ctx context.Context, subject, text string) (*repository.CacheEntry, error) {
	fingerprint := repository.Fingerprint(text)

	cached, err := s.cache.Get(ctx, subject, fingerprint)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		s.countCache(true)
		return cached, nil
	}
	s.countCache(false)

	result := s.analyzer.Analyze(ctx, text)
	if result == nil {
		s.logger.Debug("no sentiment signal for text",
			zap.String("subject", subject),
			zap.String("fingerprint", fingerprint))
		return nil, nil
	}

	entry := s.entryFrom(subject, fingerprint, result)
	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// AnalyzeBatch scores a batch of texts for one subject, skipping texts that
// already have cached results. It returns every entry now present for the
// batch, cached or fresh; texts with no signal are absent from the result.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, subject string, texts []string) ([]repository.CacheEntry, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	fingerprints := make([]string, 0, len(texts))
	byFingerprint := make(map[string]string, len(texts))
	for _, text := range texts {
		fp := repository.Fingerprint(text)
		if _, seen := byFingerprint[fp]; seen {
			continue
		}
		fingerprints = append(fingerprints, fp)
		byFingerprint[fp] = text
	}

	existing, err := s.cache.BatchCheckExistence(ctx, subject, fingerprints)
	if err != nil {
		return nil, err
	}

	var fresh []repository.CacheEntry
	for _, fp := range fingerprints {
		if _, ok := existing[fp]; ok {
			s.countCache(true)
			continue
		}
		s.countCache(false)
		result := s.analyzer.Analyze(ctx, byFingerprint[fp])
		if result == nil {
			continue
		}
		fresh = append(fresh, s.entryFrom(subject, fp, result))
	}

	if len(fresh) > 0 {
		if err := s.cache.BatchPut(ctx, fresh); err != nil {
			return nil, err
		}
	}

	entries := make([]repository.CacheEntry, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if _, ok := existing[fp]; !ok {
			continue
		}
		entry, err := s.cache.Get(ctx, subject, fp)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	entries = append(entries, fresh...)

	s.logger.Info("batch analysis complete",
		zap.String("subject", subject),
		zap.Int("texts", len(texts)),
		zap.Int("cached", len(existing)),
		zap.Int("fresh", len(fresh)))
	return entries, nil
}

// History returns every cached entry for a subject, ordered by fingerprint.
func (s *AnalysisService) History(ctx context.Context, subject string) ([]repository.CacheEntry, error) {
	return s.cache.Query(ctx, subject)
}

func (s *AnalysisService) entryFrom(subject, fingerprint string, result *sentiment.Result) repository.CacheEntry {
	return repository.CacheEntry{
		Subject:     subject,
		Fingerprint: fingerprint,
		Score:       result.Sentiment,
		Confidence:  result.Confidence,
		Label:       result.Label,
		AnalyzedAt:  s.now().UnixMilli(),
	}
}

func (s *AnalysisService) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
}
