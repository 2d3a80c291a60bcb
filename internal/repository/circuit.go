// Package repository layers entity-specific repositories over the shared
// key-value store. This package is the only place that understands the
// partition/sort key prefix conventions of the single table.
package repository

import (
	"context"
	"fmt"
	"time"

	"stockpulse-backend/internal/store"
	appErrors "stockpulse-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"
)

const circuitSortKey = "STATE"

func circuitPK(serviceName string) string {
	return fmt.Sprintf("CIRCUIT#%s", serviceName)
}

// CircuitState is the persisted breaker state for one external dependency.
// The three conceptual states are encoded by the two fields: CLOSED while
// ConsecutiveFailures is under the threshold, OPEN while now is before
// CircuitOpenUntil, HALF_OPEN once the cooldown has elapsed.
type CircuitState struct {
	ServiceName         string
	ConsecutiveFailures int
	// CircuitOpenUntil is an epoch-millisecond timestamp; 0 means not open
	CircuitOpenUntil int64
	LastSuccessAt    int64
	LastFailureAt    int64
}

// Open reports whether the circuit is open at the given instant.
func (s CircuitState) Open(now time.Time) bool {
	return now.UnixMilli() < s.CircuitOpenUntil
}

// FailureRecord is the outcome of recording one failure.
type FailureRecord struct {
	IsOpen    bool
	OpenUntil int64
}

type circuitItem struct {
	PK                  string `dynamodbav:"PK"`
	SK                  string `dynamodbav:"SK"`
	ServiceName         string `dynamodbav:"ServiceName"`
	ConsecutiveFailures int    `dynamodbav:"ConsecutiveFailures"`
	CircuitOpenUntil    int64  `dynamodbav:"CircuitOpenUntil"`
	LastSuccessAt       int64  `dynamodbav:"LastSuccessAt,omitempty"`
	LastFailureAt       int64  `dynamodbav:"LastFailureAt,omitempty"`
}

// CircuitRepository persists circuit-breaker state in the shared table.
// Transitions are computed by the caller; this repository only reads and
// writes the two fields.
type CircuitRepository struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewCircuitRepository creates a circuit-state repository over the store.
func NewCircuitRepository(st store.Store, logger *zap.Logger) *CircuitRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitRepository{
		store:  st,
		logger: logger.Named("circuit_repository"),
		now:    time.Now,
	}
}

// GetState returns the persisted state for serviceName, or the zero state if
// no record exists yet. A missing record is not an error.
func (r *CircuitRepository) GetState(ctx context.Context, serviceName string) (CircuitState, error) {
	item, err := r.store.Get(ctx, store.Key{PK: circuitPK(serviceName), SK: circuitSortKey})
	if err != nil {
		return CircuitState{}, appErrors.Wrap(err, "failed to read circuit state")
	}
	if item == nil {
		return CircuitState{ServiceName: serviceName}, nil
	}

	var stored circuitItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return CircuitState{}, appErrors.Wrap(err, "failed to unmarshal circuit state")
	}

	return CircuitState{
		ServiceName:         serviceName,
		ConsecutiveFailures: stored.ConsecutiveFailures,
		CircuitOpenUntil:    stored.CircuitOpenUntil,
		LastSuccessAt:       stored.LastSuccessAt,
		LastFailureAt:       stored.LastFailureAt,
	}, nil
}

// RecordSuccess resets the failure count and closes the circuit.
func (r *CircuitRepository) RecordSuccess(ctx context.Context, serviceName string) error {
	item, err := attributevalue.MarshalMap(circuitItem{
		PK:                  circuitPK(serviceName),
		SK:                  circuitSortKey,
		ServiceName:         serviceName,
		ConsecutiveFailures: 0,
		CircuitOpenUntil:    0,
		LastSuccessAt:       r.now().UnixMilli(),
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal circuit state")
	}

	if err := r.store.Put(ctx, store.Item(item)); err != nil {
		return appErrors.Wrap(err, "failed to record circuit success")
	}
	return nil
}

// RecordFailure increments the caller-supplied failure count and, when the
// new count reaches the threshold, opens the circuit for cooldown.
//
// The increment uses the count the caller read earlier in the same logical
// operation, not a re-read. Two concurrent failures can both read k and both
// write k+1; that under-count is an accepted approximation, traded for doing
// without a transactional increment.
func (r *CircuitRepository) RecordFailure(ctx context.Context, serviceName string, currentFailures, threshold int, cooldown time.Duration) (FailureRecord, error) {
	now := r.now()
	newCount := currentFailures + 1

	record := FailureRecord{}
	if newCount >= threshold {
		record.IsOpen = true
		record.OpenUntil = now.Add(cooldown).UnixMilli()
	}

	item, err := attributevalue.MarshalMap(circuitItem{
		PK:                  circuitPK(serviceName),
		SK:                  circuitSortKey,
		ServiceName:         serviceName,
		ConsecutiveFailures: newCount,
		CircuitOpenUntil:    record.OpenUntil,
		LastFailureAt:       now.UnixMilli(),
	})
	if err != nil {
		return FailureRecord{}, appErrors.Wrap(err, "failed to marshal circuit state")
	}

	if err := r.store.Put(ctx, store.Item(item)); err != nil {
		return FailureRecord{}, appErrors.Wrap(err, "failed to record circuit failure")
	}

	if record.IsOpen {
		r.logger.Warn("circuit opened",
			zap.String("service", serviceName),
			zap.Int("consecutive_failures", newCount),
			zap.Int64("open_until", record.OpenUntil),
		)
	}

	return record, nil
}
