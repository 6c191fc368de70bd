package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
)

const testColumns = `id, name, subject_id, class_id, test_date, total_marks, passing_marks, status, instructions,
	created_by, created_at, updated_at`

var testOrderFields = map[string]string{
	"name":        "name",
	"test_date":   "test_date",
	"status":      "status",
	"total_marks": "total_marks",
	"created_at":  "created_at",
}

type testRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*testRepository)(nil)

func NewTestRepository(db *sqlx.DB) *testRepository {
	return &testRepository{db: db}
}

func (repo *testRepository) CreateTest(ctx context.Context, tst exam.Test) (exam.Test, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO test (`+testColumns+`) VALUES (:id, :name, :subject_id, :class_id, :test_date, :total_marks,
		:passing_marks, :status, :instructions, :created_by, :created_at, :updated_at)`,
		tst)
	if err != nil {
		return exam.Test{}, errors.Wrap(err, "inserting test")
	}
	return tst, nil
}

func (repo *testRepository) GetTest(ctx context.Context, id string) (exam.Test, error) {
	if !validID(id) {
		return exam.Test{}, exam.ErrNotFound
	}
	var tst exam.Test
	if err := sqlx.GetContext(ctx, repo.db, &tst, `SELECT `+testColumns+` FROM test WHERE id = $1`, id); err != nil {
		return exam.Test{}, trapNoRows(err, exam.ErrNotFound, "getting test")
	}
	return tst, nil
}

func (repo *testRepository) QueryTests(ctx context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering) ([]exam.Test, error) {
	var w where
	if filter != nil {
		w.search(filter.Search, "name", "instructions")
		for col, id := range map[string]string{"class_id": filter.ClassID, "subject_id": filter.SubjectID} {
			if id == "" {
				continue
			}
			if !validID(id) {
				return []exam.Test{}, nil
			}
			w.add(col+" = ?", id)
		}
		if len(filter.Status) > 0 {
			w.add("status = ANY(?)", pq.StringArray(filter.Status))
		}
		if !filter.DateFrom.IsZero() {
			w.add("test_date >= ?", filter.DateFrom)
		}
		if !filter.DateTo.IsZero() {
			w.add("test_date <= ?", filter.DateTo)
		}
	}
	tests := []exam.Test{}
	q := `SELECT ` + testColumns + ` FROM test` + w.String() +
		` ORDER BY ` + core.OrderBy(ordering, testOrderFields, "test_date DESC NULLS LAST, created_at DESC")
	if err := selectRebind(ctx, repo.db, &tests, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tests")
	}
	return tests, nil
}

func (repo *testRepository) UpdateTest(ctx context.Context, tst exam.Test) (exam.Test, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE test SET name = :name, subject_id = :subject_id, test_date = :test_date, total_marks = :total_marks,
		passing_marks = :passing_marks, status = :status, instructions = :instructions, updated_at = :updated_at
		WHERE id = :id`,
		tst)
	if err != nil {
		return exam.Test{}, errors.Wrap(err, "updating test")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.Test{}, exam.ErrNotFound
	}
	return tst, nil
}

// DeleteTest removes a test with its papers, questions & evaluations (ON DELETE CASCADE).
func (repo *testRepository) DeleteTest(ctx context.Context, id string) error {
	if !validID(id) {
		return exam.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM test WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting test")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

func (repo *testRepository) CountTestsInClass(ctx context.Context, classID string) (int, error) {
	if !validID(classID) {
		return 0, nil
	}
	return count(ctx, repo.db, `SELECT count(*) FROM test WHERE class_id = ?`, classID)
}
