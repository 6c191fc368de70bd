package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
)

type testRepository struct {
	db *DB
}

var _ exam.Repository = (*testRepository)(nil)

func NewTestRepository(db *DB) *testRepository {
	return &testRepository{db: db}
}

func (repo *testRepository) CreateTest(_ context.Context, tst exam.Test) (exam.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.tests[tst.ID] = tst
	return tst, nil
}

func (repo *testRepository) GetTest(_ context.Context, id string) (exam.Test, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if tst, ok := repo.db.tests[id]; ok {
		return tst, nil
	}
	return exam.Test{}, exam.ErrNotFound
}

func (repo *testRepository) QueryTests(_ context.Context, filter *exam.QueryFilter, _ []core.DBOrdering) ([]exam.Test, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tests := make([]exam.Test, 0, len(repo.db.tests))
	for _, tst := range repo.db.tests {
		if filter == nil || filter.Matches(tst) {
			tests = append(tests, tst)
		}
	}
	// test_date DESC NULLS LAST, created_at DESC
	sort.Slice(tests, func(i, j int) bool {
		a, b := tests[i], tests[j]
		if a.TestDate.Valid != b.TestDate.Valid {
			return a.TestDate.Valid
		}
		if a.TestDate.Valid && !a.TestDate.Time.Equal(b.TestDate.Time) {
			return a.TestDate.Time.After(b.TestDate.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return tests, nil
}

func (repo *testRepository) UpdateTest(_ context.Context, tst exam.Test) (exam.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.tests[tst.ID]; !ok {
		return exam.Test{}, exam.ErrNotFound
	}
	repo.db.tests[tst.ID] = tst
	return tst, nil
}

// DeleteTest also deletes the papers, questions and evaluations of the test.
func (repo *testRepository) DeleteTest(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.tests[id]; !ok {
		return exam.ErrNotFound
	}
	delete(repo.db.tests, id)
	delete(repo.db.notified, id)
	for pid, p := range repo.db.papers {
		if p.TestID == id {
			delete(repo.db.papers, pid)
		}
	}
	for qid, q := range repo.db.questions {
		if q.TestID == id {
			delete(repo.db.questions, qid)
		}
	}
	for eid, ev := range repo.db.evaluations {
		if ev.TestID == id {
			delete(repo.db.evaluations, eid)
		}
	}
	return nil
}

func (repo *testRepository) CountTestsInClass(_ context.Context, classID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	var n int
	for _, tst := range repo.db.tests {
		if tst.ClassID == classID {
			n++
		}
	}
	return n, nil
}
