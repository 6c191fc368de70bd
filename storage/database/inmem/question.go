package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/tathmini/core/question"
)

type questionRepository struct {
	db *DB
}

var _ question.Repository = (*questionRepository)(nil)

func NewQuestionRepository(db *DB) *questionRepository {
	return &questionRepository{db: db}
}

func cloneQuestion(q question.Question) question.Question {
	q.Options = copyStrings(q.Options)
	if q.Options == nil {
		q.Options = []string{}
	}
	return q
}

func (repo *questionRepository) numberTaken(testID string, number int, excludeID string) bool {
	for _, q := range repo.db.questions {
		if q.ID != excludeID && q.TestID == testID && q.Number == number {
			return true
		}
	}
	return false
}

func (repo *questionRepository) CreateQuestions(_ context.Context, questions []question.Question) ([]question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	seen := make(map[string]map[int]bool)
	for _, q := range questions {
		if seen[q.TestID] == nil {
			seen[q.TestID] = make(map[int]bool)
		}
		if seen[q.TestID][q.Number] || repo.numberTaken(q.TestID, q.Number, "") {
			return nil, question.ErrNumberExists
		}
		seen[q.TestID][q.Number] = true
	}
	for _, q := range questions {
		repo.db.questions[q.ID] = cloneQuestion(q)
	}
	return questions, nil
}

func (repo *questionRepository) GetQuestion(_ context.Context, id string) (question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if q, ok := repo.db.questions[id]; ok {
		return cloneQuestion(q), nil
	}
	return question.Question{}, question.ErrNotFound
}

func (repo *questionRepository) ListQuestions(_ context.Context, testID string) ([]question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := []question.Question{}
	for _, q := range repo.db.questions {
		if q.TestID == testID {
			questions = append(questions, cloneQuestion(q))
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })
	return questions, nil
}

func (repo *questionRepository) UpdateQuestion(_ context.Context, q question.Question) (question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.questions[q.ID]; !ok {
		return question.Question{}, question.ErrNotFound
	}
	if repo.numberTaken(q.TestID, q.Number, q.ID) {
		return question.Question{}, question.ErrNumberExists
	}
	repo.db.questions[q.ID] = cloneQuestion(q)
	return q, nil
}

func (repo *questionRepository) DeleteQuestion(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.questions[id]; !ok {
		return question.ErrNotFound
	}
	delete(repo.db.questions, id)
	return nil
}

func (repo *questionRepository) NumberExists(_ context.Context, testID string, number int, excludeID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.numberTaken(testID, number, excludeID), nil
}

func (repo *questionRepository) MaxNumber(_ context.Context, testID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	var max int
	for _, q := range repo.db.questions {
		if q.TestID == testID && q.Number > max {
			max = q.Number
		}
	}
	return max, nil
}
