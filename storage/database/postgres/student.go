package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/student"
)

const studentColumns = `id, class_id, name, roll_number, email, gender, date_of_birth, guardian_name, guardian_phone,
	is_active, created_at, updated_at`

var studentOrderFields = map[string]string{
	"name":        "name",
	"roll_number": "roll_number",
	"created_at":  "created_at",
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CheckRollNumberUniqueness(ctx context.Context, classID, rollNumber, excludeID string) error {
	if !validID(classID) {
		return nil
	}
	q := `SELECT 1 FROM student WHERE class_id = ? AND lower(roll_number) = lower(?)`
	args := []interface{}{classID, rollNumber}
	if validID(excludeID) {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	found, err := exists(ctx, repo.db, q, args...)
	if err != nil {
		return errors.Wrap(err, "checking roll number")
	}
	if found {
		return student.ErrRollNumberExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO student (`+studentColumns+`) VALUES (:id, :class_id, :name, :roll_number, :email, :gender,
		:date_of_birth, :guardian_name, :guardian_phone, :is_active, :created_at, :updated_at)`,
		std)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return student.Student{}, student.ErrRollNumberExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if !validID(id) {
		return student.Student{}, student.ErrNotFound
	}
	var std student.Student
	if err := sqlx.GetContext(ctx, repo.db, &std, `SELECT `+studentColumns+` FROM student WHERE id = $1`, id); err != nil {
		return student.Student{}, trapNoRows(err, student.ErrNotFound, "getting student")
	}
	return std, nil
}

// QueryStudents mirrors student.Filter: search is a case-insensitive match on name, roll number or email.
func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	var w where
	if filter != nil {
		w.search(filter.Search, "name", "roll_number", "email")
		if filter.ClassID != "" {
			if !validID(filter.ClassID) {
				return []student.Student{}, nil
			}
			w.add("class_id = ?", filter.ClassID)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}
	students := []student.Student{}
	q := `SELECT ` + studentColumns + ` FROM student` + w.String() +
		` ORDER BY ` + core.OrderBy(ordering, studentOrderFields, "name ASC")
	if err := selectRebind(ctx, repo.db, &students, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

// UpdateStudent unassigns the answer sheets of tests outside the (new) class of the student.
func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx,
			`UPDATE student SET class_id = :class_id, name = :name, roll_number = :roll_number, email = :email,
			gender = :gender, date_of_birth = :date_of_birth, guardian_name = :guardian_name,
			guardian_phone = :guardian_phone, is_active = :is_active, updated_at = :updated_at WHERE id = :id`,
			std)
		if err != nil {
			if pqCode(err) == uniqueViolation {
				return student.ErrRollNumberExists
			}
			return errors.Wrap(err, "updating student")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return student.ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE paper SET student_id = NULL, assigned_at = NULL
			WHERE student_id = $1 AND test_id IN (SELECT id FROM test WHERE class_id <> $2)`,
			std.ID, std.ClassID)
		return errors.Wrap(err, "unassigning answer sheets")
	})
	if err != nil {
		return student.Student{}, err
	}
	return std, nil
}

func (repo *studentRepository) StudentTests(ctx context.Context, id string) ([]string, error) {
	ids := []string{}
	if !validID(id) {
		return ids, nil
	}
	err := sqlx.SelectContext(ctx, repo.db, &ids,
		`SELECT test_id FROM paper WHERE student_id = $1
		UNION SELECT test_id FROM evaluation WHERE student_id = $1
		ORDER BY 1`, id)
	if err != nil {
		return nil, errors.Wrap(err, "listing tests of student")
	}
	return ids, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	if !validID(id) {
		return student.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM student WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo *studentRepository) CountStudentsInClass(ctx context.Context, classID string) (int, error) {
	if !validID(classID) {
		return 0, nil
	}
	return count(ctx, repo.db, `SELECT count(*) FROM student WHERE class_id = ?`, classID)
}
