package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/paper"
)

type paperRepository struct {
	db *DB
}

var _ paper.Repository = (*paperRepository)(nil)

func NewPaperRepository(db *DB) *paperRepository {
	return &paperRepository{db: db}
}

func (repo *paperRepository) CreatePaper(_ context.Context, p paper.Paper) (paper.Paper, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, other := range repo.db.papers {
		if other.StorageKey == p.StorageKey {
			return paper.Paper{}, errors.Errorf("storage key %q already used", p.StorageKey)
		}
	}
	repo.db.papers[p.ID] = p
	return p, nil
}

func (repo *paperRepository) GetPaper(_ context.Context, id string) (paper.Paper, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if p, ok := repo.db.papers[id]; ok {
		return p, nil
	}
	return paper.Paper{}, paper.ErrNotFound
}

func (repo *paperRepository) ListPapers(_ context.Context, testID, kind string) ([]paper.Paper, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	papers := []paper.Paper{}
	for _, p := range repo.db.papers {
		if p.TestID == testID && (kind == "" || p.Kind == kind) {
			papers = append(papers, p)
		}
	}
	sort.Slice(papers, func(i, j int) bool {
		if !papers[i].CreatedAt.Equal(papers[j].CreatedAt) {
			return papers[i].CreatedAt.Before(papers[j].CreatedAt)
		}
		return papers[i].Filename < papers[j].Filename
	})
	return papers, nil
}

func (repo *paperRepository) UpdatePaper(_ context.Context, p paper.Paper) (paper.Paper, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	orig, ok := repo.db.papers[p.ID]
	if !ok {
		return paper.Paper{}, paper.ErrNotFound
	}
	orig.StudentID = p.StudentID
	orig.AssignedAt = p.AssignedAt
	orig.Filename = p.Filename
	repo.db.papers[p.ID] = orig
	return orig, nil
}

// DeletePaper also deletes the evaluations of the paper.
func (repo *paperRepository) DeletePaper(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.papers[id]; !ok {
		return paper.ErrNotFound
	}
	delete(repo.db.papers, id)
	for eid, ev := range repo.db.evaluations {
		if ev.PaperID == id {
			delete(repo.db.evaluations, eid)
		}
	}
	return nil
}

func (repo *paperRepository) StorageKeyExists(_ context.Context, key string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	for _, p := range repo.db.papers {
		if p.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}
