package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"stockpulse-backend/internal/store"
	appErrors "stockpulse-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"
)

// CacheKind selects the partition prefix and retention window of a cache
// entry family.
type CacheKind string

const (
	KindSentiment  CacheKind = "SENTIMENT"
	KindArticle    CacheKind = "ARTICLE"
	KindHistorical CacheKind = "HISTORICAL"
)

const cacheSortKeyPrefix = "HASH#"

// Fingerprint returns the stable content hash used in cache keys.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CacheEntry is one analysis result, keyed by (subject, content fingerprint).
// Entries are write-once: the first successful write wins and later writes
// with the same key are ignored.
type CacheEntry struct {
	Subject     string
	Fingerprint string
	Score       float64
	Confidence  float64
	Label       string
	// AnalyzedAt is an epoch-millisecond timestamp
	AnalyzedAt int64
	// ExpiresAt is the TTL attribute, in epoch seconds
	ExpiresAt int64
}

type cacheItem struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	Subject     string  `dynamodbav:"Subject"`
	Fingerprint string  `dynamodbav:"Fingerprint"`
	Score       float64 `dynamodbav:"Score"`
	Confidence  float64 `dynamodbav:"Confidence"`
	Label       string  `dynamodbav:"Label"`
	AnalyzedAt  int64   `dynamodbav:"AnalyzedAt"`
	TTL         int64   `dynamodbav:"TTL"`
}

// CacheRepository stores write-once analysis results for one cache kind.
type CacheRepository struct {
	store   store.Store
	kind    CacheKind
	ttlDays int
	logger  *zap.Logger
	now     func() time.Time
}

// NewCacheRepository creates a repository for one entry kind with the given
// retention window in whole days.
func NewCacheRepository(st store.Store, kind CacheKind, ttlDays int, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{
		store:   st,
		kind:    kind,
		ttlDays: ttlDays,
		logger:  logger.Named("cache_repository").With(zap.String("kind", string(kind))),
		now:     time.Now,
	}
}

func (r *CacheRepository) partitionKey(subject string) string {
	return fmt.Sprintf("%s#%s", r.kind, subject)
}

func sortKey(fingerprint string) string {
	return cacheSortKeyPrefix + fingerprint
}

// expiresAt converts the retention window to an absolute epoch-second TTL.
func (r *CacheRepository) expiresAt() int64 {
	return r.now().Add(time.Duration(r.ttlDays) * 24 * time.Hour).Unix()
}

// Get returns the entry for (subject, fingerprint), or nil if absent.
func (r *CacheRepository) Get(ctx context.Context, subject, fingerprint string) (*CacheEntry, error) {
	item, err := r.store.Get(ctx, store.Key{PK: r.partitionKey(subject), SK: sortKey(fingerprint)})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to read cache entry")
	}
	if item == nil {
		return nil, nil
	}
	return unmarshalCacheEntry(item)
}

// Put stores the entry if its key is not already present. A duplicate key is
// not an error: the existing entry stays untouched and the call succeeds.
func (r *CacheRepository) Put(ctx context.Context, entry CacheEntry) error {
	item, err := r.marshalEntry(entry)
	if err != nil {
		return err
	}

	applied, err := r.store.PutConditional(ctx, item)
	if err != nil {
		return appErrors.Wrap(err, "failed to write cache entry")
	}
	if !applied {
		r.logger.Debug("cache entry already present, keeping first write",
			zap.String("subject", entry.Subject),
			zap.String("fingerprint", entry.Fingerprint),
		)
	}
	return nil
}

// Query returns all entries for subject in the store's sort-key order.
func (r *CacheRepository) Query(ctx context.Context, subject string) ([]CacheEntry, error) {
	items, err := r.store.Query(ctx, r.partitionKey(subject), cacheSortKeyPrefix)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to query cache entries")
	}

	entries := make([]CacheEntry, 0, len(items))
	for _, item := range items {
		entry, err := unmarshalCacheEntry(item)
		if err != nil {
			r.logger.Warn("skipping unparseable cache entry", zap.Error(err))
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// BatchPut stores the entries; the store adapter chunks to the batch-write
// limit. An empty slice resolves without a store call.
//
// Batch writes are plain puts: DynamoDB batch operations cannot carry
// conditions, so last-write-wins applies within a batch. Callers dedupe via
// BatchCheckExistence first, which keeps the idempotent-producer behavior.
func (r *CacheRepository) BatchPut(ctx context.Context, entries []CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	items := make([]store.Item, 0, len(entries))
	for _, entry := range entries {
		item, err := r.marshalEntry(entry)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	if err := r.store.BatchPut(ctx, items); err != nil {
		return appErrors.Wrap(err, "failed to batch write cache entries")
	}

	r.logger.Info("batch put cache entries", zap.Int("count", len(items)))
	return nil
}

// BatchCheckExistence returns the subset of fingerprints that already have an
// entry for subject. Empty input returns an empty set without a store call.
func (r *CacheRepository) BatchCheckExistence(ctx context.Context, subject string, fingerprints []string) (map[string]struct{}, error) {
	present := make(map[string]struct{})
	if len(fingerprints) == 0 {
		return present, nil
	}

	keys := make([]store.Key, 0, len(fingerprints))
	pk := r.partitionKey(subject)
	for _, fp := range fingerprints {
		keys = append(keys, store.Key{PK: pk, SK: sortKey(fp)})
	}

	items, err := r.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to batch check cache entries")
	}

	for _, item := range items {
		var stored cacheItem
		if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
			continue
		}
		present[stored.Fingerprint] = struct{}{}
	}
	return present, nil
}

func (r *CacheRepository) marshalEntry(entry CacheEntry) (store.Item, error) {
	expiresAt := entry.ExpiresAt
	if expiresAt == 0 {
		expiresAt = r.expiresAt()
	}
	analyzedAt := entry.AnalyzedAt
	if analyzedAt == 0 {
		analyzedAt = r.now().UnixMilli()
	}

	item, err := attributevalue.MarshalMap(cacheItem{
		PK:          r.partitionKey(entry.Subject),
		SK:          sortKey(entry.Fingerprint),
		Subject:     entry.Subject,
		Fingerprint: entry.Fingerprint,
		Score:       entry.Score,
		Confidence:  entry.Confidence,
		Label:       entry.Label,
		AnalyzedAt:  analyzedAt,
		TTL:         expiresAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to marshal cache entry")
	}
	return store.Item(item), nil
}

func unmarshalCacheEntry(item store.Item) (*CacheEntry, error) {
	var stored cacheItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal cache entry")
	}
	return &CacheEntry{
		Subject:     stored.Subject,
		Fingerprint: stored.Fingerprint,
		Score:       stored.Score,
		Confidence:  stored.Confidence,
		Label:       stored.Label,
		AnalyzedAt:  stored.AnalyzedAt,
		ExpiresAt:   stored.TTL,
	}, nil
}
