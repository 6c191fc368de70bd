package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
)

const classColumns = `id, name, grade, section, academic_year, created_at, updated_at`

var classOrderFields = map[string]string{
	"name":          "name",
	"grade":         "grade",
	"section":       "section",
	"academic_year": "academic_year",
	"created_at":    "created_at",
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) CheckUniqueness(ctx context.Context, name, section, academicYear, excludeID string) error {
	q := `SELECT 1 FROM class WHERE lower(name) = lower(?) AND section = ? AND academic_year = ?`
	args := []interface{}{name, section, academicYear}
	if validID(excludeID) {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	found, err := exists(ctx, repo.db, q, args...)
	if err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if found {
		return class.ErrClassExists
	}
	return nil
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO class (`+classColumns+`) VALUES (:id, :name, :grade, :section, :academic_year, :created_at, :updated_at)`,
		cls)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return class.Class{}, class.ErrClassExists
		}
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	if !validID(id) {
		return class.Class{}, class.ErrNotFound
	}
	var cls class.Class
	if err := sqlx.GetContext(ctx, repo.db, &cls, `SELECT `+classColumns+` FROM class WHERE id = $1`, id); err != nil {
		return class.Class{}, trapNoRows(err, class.ErrNotFound, "getting class")
	}
	return cls, nil
}

func (repo *classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	var w where
	if filter != nil {
		w.search(filter.Search, "name", "grade", "section")
		if filter.AcademicYear != "" {
			w.add("academic_year = ?", filter.AcademicYear)
		}
	}
	classes := []class.Class{}
	q := `SELECT ` + classColumns + ` FROM class` + w.String() +
		` ORDER BY ` + core.OrderBy(ordering, classOrderFields, "name ASC, section ASC")
	if err := selectRebind(ctx, repo.db, &classes, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE class SET name = :name, grade = :grade, section = :section, academic_year = :academic_year,
		updated_at = :updated_at WHERE id = :id`,
		cls)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return class.Class{}, class.ErrClassExists
		}
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return cls, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	if !validID(id) {
		return class.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM class WHERE id = $1`, id)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return core.NewValidationError(class.ErrHasStudents)
		}
		return errors.Wrap(err, "deleting class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return class.ErrNotFound
	}
	return nil
}
