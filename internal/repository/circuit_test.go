package repository

import (
	"context"
	"testing"
	"time"

	"stockpulse-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testService = "sentiment-inference"

func newCircuitRepo(t *testing.T) *CircuitRepository {
	t.Helper()
	return NewCircuitRepository(store.NewMemoryStore(), zap.NewNop())
}

func TestCircuitRepository_GetState_DefaultsWhenAbsent(t *testing.T) {
	repo := newCircuitRepo(t)

	state, err := repo.GetState(context.Background(), testService)
	require.NoError(t, err)

	assert.Equal(t, testService, state.ServiceName)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Equal(t, int64(0), state.CircuitOpenUntil)
	assert.False(t, state.Open(time.Now()))
}

func TestCircuitRepository_RecordFailure_BelowThresholdStaysClosed(t *testing.T) {
	repo := newCircuitRepo(t)
	ctx := context.Background()

	record, err := repo.RecordFailure(ctx, testService, 3, 5, 30*time.Second)
	require.NoError(t, err)

	assert.False(t, record.IsOpen)
	assert.Equal(t, int64(0), record.OpenUntil)

	state, err := repo.GetState(ctx, testService)
	require.NoError(t, err)
	assert.Equal(t, 4, state.ConsecutiveFailures)
	assert.False(t, state.Open(time.Now()))
}

func TestCircuitRepository_RecordFailure_OpensAtThreshold(t *testing.T) {
	repo := newCircuitRepo(t)
	ctx := context.Background()
	cooldown := 30 * time.Second

	before := time.Now()
	record, err := repo.RecordFailure(ctx, testService, 4, 5, cooldown)
	require.NoError(t, err)
	after := time.Now()

	assert.True(t, record.IsOpen)
	assert.GreaterOrEqual(t, record.OpenUntil, before.UnixMilli())
	assert.LessOrEqual(t, record.OpenUntil, after.Add(cooldown).UnixMilli())

	state, err := repo.GetState(ctx, testService)
	require.NoError(t, err)
	assert.Equal(t, 5, state.ConsecutiveFailures)
	assert.True(t, state.Open(time.Now()))
}

func TestCircuitRepository_RecordFailure_AboveThresholdStaysOpen(t *testing.T) {
	repo := newCircuitRepo(t)

	record, err := repo.RecordFailure(context.Background(), testService, 9, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, record.IsOpen)
}

func TestCircuitRepository_RecordSuccess_Resets(t *testing.T) {
	repo := newCircuitRepo(t)
	ctx := context.Background()

	_, err := repo.RecordFailure(ctx, testService, 7, 5, time.Minute)
	require.NoError(t, err)

	require.NoError(t, repo.RecordSuccess(ctx, testService))

	state, err := repo.GetState(ctx, testService)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Equal(t, int64(0), state.CircuitOpenUntil)
	assert.NotZero(t, state.LastSuccessAt)
	assert.False(t, state.Open(time.Now()))
}

// Two concurrent failures that both read the same count both write count+1.
// The resulting under-count is the documented behavior of the caller-supplied
// increment, so the repository must not correct it.
func TestCircuitRepository_RecordFailure_CallerCountWins(t *testing.T) {
	repo := newCircuitRepo(t)
	ctx := context.Background()

	_, err := repo.RecordFailure(ctx, testService, 2, 5, time.Minute)
	require.NoError(t, err)
	_, err = repo.RecordFailure(ctx, testService, 2, 5, time.Minute)
	require.NoError(t, err)

	state, err := repo.GetState(ctx, testService)
	require.NoError(t, err)
	assert.Equal(t, 3, state.ConsecutiveFailures)
}

func TestCircuitState_HalfOpenAfterCooldown(t *testing.T) {
	state := CircuitState{
		ConsecutiveFailures: 5,
		CircuitOpenUntil:    time.Now().Add(-time.Second).UnixMilli(),
	}
	// cooldown elapsed: no longer open, a probe call may proceed
	assert.False(t, state.Open(time.Now()))
}
