package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core/evaluation"
)

func TestEvaluationRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewEvaluationRepository(NewDB())

	_, err := repo.CreateEvaluations(ctx, []evaluation.Evaluation{
		{ID: "late", TestID: "t1", Status: evaluation.StatusPending, NextAttemptAt: now.Add(-time.Minute), CreatedAt: now},
		{ID: "early", TestID: "t1", Status: evaluation.StatusPending, NextAttemptAt: now.Add(-time.Hour), CreatedAt: now},
		{ID: "future", TestID: "t1", Status: evaluation.StatusPending, NextAttemptAt: now.Add(time.Minute), CreatedAt: now},
		{ID: "done", TestID: "t2", Status: evaluation.StatusCompleted, NextAttemptAt: now.Add(-time.Hour), CreatedAt: now},
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "early", claimed[0].ID)
	assert.Equal(t, evaluation.StatusProcessing, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, null.TimeFrom(now), claimed[0].StartedAt)

	claimed, err = repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "late", claimed[0].ID)

	claimed, err = repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	counts, err := repo.CountByStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{evaluation.StatusProcessing: 2, evaluation.StatusPending: 1}, counts)
}

func TestEvaluationRepository_RequeueStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewEvaluationRepository(NewDB())

	_, err := repo.CreateEvaluations(ctx, []evaluation.Evaluation{
		{ID: "stuck", Status: evaluation.StatusProcessing, StartedAt: null.TimeFrom(now.Add(-time.Hour))},
		{ID: "running", Status: evaluation.StatusProcessing, StartedAt: null.TimeFrom(now.Add(-time.Minute))},
		{ID: "queued", Status: evaluation.StatusPending},
	})
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stuck, err := repo.GetEvaluation(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, evaluation.StatusPending, stuck.Status)
	assert.Equal(t, now.Add(-time.Hour), stuck.NextAttemptAt)

	running, err := repo.GetEvaluation(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, evaluation.StatusProcessing, running.Status)
}

func TestEvaluationRepository_records(t *testing.T) {
	ctx := context.Background()
	repo := NewEvaluationRepository(NewDB())

	_, err := repo.GetEvaluation(ctx, "nope")
	assert.Equal(t, evaluation.ErrNotFound, err)
	_, err = repo.UpdateEvaluation(ctx, evaluation.Evaluation{ID: "nope"})
	assert.Equal(t, evaluation.ErrNotFound, err)

	ev := evaluation.Evaluation{ID: "e1", TestID: "t1", Status: evaluation.StatusCompleted,
		Results: evaluation.Results{{QuestionNumber: 1, Awarded: 2, Max: 5}}}
	_, err = repo.CreateEvaluations(ctx, []evaluation.Evaluation{ev})
	require.NoError(t, err)

	// stored results are copies
	ev.Results[0].Awarded = 5
	got, err := repo.GetEvaluation(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Results[0].Awarded)

	evs, err := repo.QueryEvaluations(ctx, evaluation.QueryFilter{TestID: "t1"})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
	evs, err = repo.QueryEvaluations(ctx, evaluation.QueryFilter{TestID: "t2"})
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestEvaluationRepository_notified(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewEvaluationRepository(NewDB())

	first, err := repo.MarkNotified(ctx, "t1", now)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkNotified(ctx, "t1", now)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, repo.ClearNotified(ctx, "t1"))
	first, err = repo.MarkNotified(ctx, "t1", now)
	require.NoError(t, err)
	assert.True(t, first)
}
