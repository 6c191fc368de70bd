package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core/evaluation"
)

type evaluationRepository struct {
	db *DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil)

func NewEvaluationRepository(db *DB) *evaluationRepository {
	return &evaluationRepository{db: db}
}

func cloneEvaluation(ev evaluation.Evaluation) evaluation.Evaluation {
	if ev.Results != nil {
		results := make(evaluation.Results, len(ev.Results))
		copy(results, ev.Results)
		ev.Results = results
	} else {
		ev.Results = evaluation.Results{}
	}
	return ev
}

func sortEvaluations(evs []evaluation.Evaluation) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].CreatedAt.Equal(evs[j].CreatedAt) {
			return evs[i].CreatedAt.Before(evs[j].CreatedAt)
		}
		return evs[i].ID < evs[j].ID
	})
}

func (repo *evaluationRepository) CreateEvaluations(_ context.Context, evs []evaluation.Evaluation) ([]evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, ev := range evs {
		repo.db.evaluations[ev.ID] = cloneEvaluation(ev)
	}
	return evs, nil
}

func (repo *evaluationRepository) GetEvaluation(_ context.Context, id string) (evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if ev, ok := repo.db.evaluations[id]; ok {
		return cloneEvaluation(ev), nil
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *evaluationRepository) QueryEvaluations(_ context.Context, filter evaluation.QueryFilter) ([]evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evs := []evaluation.Evaluation{}
	for _, ev := range repo.db.evaluations {
		if filter.Matches(ev) {
			evs = append(evs, cloneEvaluation(ev))
		}
	}
	sortEvaluations(evs)
	return evs, nil
}

func (repo *evaluationRepository) UpdateEvaluation(_ context.Context, ev evaluation.Evaluation) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.evaluations[ev.ID]; !ok {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	repo.db.evaluations[ev.ID] = cloneEvaluation(ev)
	return ev, nil
}

func (repo *evaluationRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	due := []evaluation.Evaluation{}
	for _, ev := range repo.db.evaluations {
		if ev.Status == evaluation.StatusPending && !ev.NextAttemptAt.After(now) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = evaluation.StatusProcessing
		due[i].Attempts++
		due[i].StartedAt = null.TimeFrom(now)
		due[i].UpdatedAt = now
		repo.db.evaluations[due[i].ID] = due[i]
		due[i] = cloneEvaluation(due[i])
	}
	return due, nil
}

func (repo *evaluationRepository) RequeueStale(_ context.Context, before time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for id, ev := range repo.db.evaluations {
		if ev.Status == evaluation.StatusProcessing && ev.StartedAt.Valid && ev.StartedAt.Time.Before(before) {
			ev.Status = evaluation.StatusPending
			ev.NextAttemptAt = ev.StartedAt.Time
			ev.UpdatedAt = before
			repo.db.evaluations[id] = ev
			n++
		}
	}
	return n, nil
}

func (repo *evaluationRepository) CountByStatus(_ context.Context, testID string) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	counts := make(map[string]int)
	for _, ev := range repo.db.evaluations {
		if ev.TestID == testID {
			counts[ev.Status]++
		}
	}
	return counts, nil
}

func (repo *evaluationRepository) MarkNotified(_ context.Context, testID string, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.notified[testID]; ok {
		return false, nil
	}
	repo.db.notified[testID] = at
	return true, nil
}

func (repo *evaluationRepository) ClearNotified(_ context.Context, testID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.notified, testID)
	return nil
}
