package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/subject"
)

const subjectColumns = `id, class_id, name, code, description, created_at, updated_at`

var subjectOrderFields = map[string]string{
	"name":       "name",
	"code":       "code",
	"created_at": "created_at",
}

type subjectRepository struct {
	db *sqlx.DB
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *sqlx.DB) *subjectRepository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) CheckCodeUniqueness(ctx context.Context, code, excludeID string) error {
	q := `SELECT 1 FROM subject WHERE code = ?`
	args := []interface{}{code}
	if validID(excludeID) {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	found, err := exists(ctx, repo.db, q, args...)
	if err != nil {
		return errors.Wrap(err, "checking subject code")
	}
	if found {
		return subject.ErrCodeExists
	}
	return nil
}

func (repo *subjectRepository) CreateSubject(ctx context.Context, sbj subject.Subject) (subject.Subject, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO subject (`+subjectColumns+`) VALUES (:id, :class_id, :name, :code, :description, :created_at, :updated_at)`,
		sbj)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return sbj, nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, id string) (subject.Subject, error) {
	if !validID(id) {
		return subject.Subject{}, subject.ErrNotFound
	}
	var sbj subject.Subject
	if err := sqlx.GetContext(ctx, repo.db, &sbj, `SELECT `+subjectColumns+` FROM subject WHERE id = $1`, id); err != nil {
		return subject.Subject{}, trapNoRows(err, subject.ErrNotFound, "getting subject")
	}
	return sbj, nil
}

func (repo *subjectRepository) QuerySubjects(ctx context.Context, filter *subject.QueryFilter, ordering []core.DBOrdering) ([]subject.Subject, error) {
	var w where
	if filter != nil {
		w.search(filter.Search, "name", "code", "description")
		if filter.ClassID != "" {
			if !validID(filter.ClassID) {
				return []subject.Subject{}, nil
			}
			w.add("class_id = ?", filter.ClassID)
		}
	}
	subjects := []subject.Subject{}
	q := `SELECT ` + subjectColumns + ` FROM subject` + w.String() +
		` ORDER BY ` + core.OrderBy(ordering, subjectOrderFields, "name ASC")
	if err := selectRebind(ctx, repo.db, &subjects, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(ctx context.Context, sbj subject.Subject) (subject.Subject, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE subject SET class_id = :class_id, name = :name, code = :code, description = :description,
		updated_at = :updated_at WHERE id = :id`,
		sbj)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return sbj, nil
}

func (repo *subjectRepository) DeleteSubject(ctx context.Context, id string) error {
	if !validID(id) {
		return subject.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM subject WHERE id = $1`, id)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return subject.ErrInUse
		}
		return errors.Wrap(err, "deleting subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subject.ErrNotFound
	}
	return nil
}
