package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) taken(classID, rollNumber, excludeID string) bool {
	for _, std := range repo.db.students {
		if std.ID != excludeID && std.ClassID == classID && std.RollNumber == rollNumber {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CheckRollNumberUniqueness(_ context.Context, classID, rollNumber, excludeID string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if repo.taken(classID, rollNumber, excludeID) {
		return student.ErrRollNumberExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if repo.taken(std.ClassID, std.RollNumber, std.ID) {
		return student.Student{}, student.ErrRollNumberExists
	}
	repo.db.students[std.ID] = std
	return std, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if std, ok := repo.db.students[id]; ok {
		return std, nil
	}
	return student.Student{}, student.ErrNotFound
}

var studentOrderFields = map[string]func(a, b student.Student) int{
	"name":        func(a, b student.Student) int { return strings.Compare(a.Name, b.Name) },
	"roll_number": func(a, b student.Student) int { return strings.Compare(a.RollNumber, b.RollNumber) },
	"created_at": func(a, b student.Student) int {
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
		return 0
	},
}

// sortStudents applies ordering, then sorts by name and roll number. Unknown fields are ignored.
func sortStudents(students []student.Student, ordering []core.DBOrdering) {
	fields := make([]core.DBOrdering, 0, len(ordering)+2)
	fields = append(fields, ordering...)
	fields = append(fields, core.DBOrdering{Field: "name", Ascending: true}, core.DBOrdering{Field: "roll_number", Ascending: true})

	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range fields {
			cmp, ok := studentOrderFields[ord.Field]
			if !ok {
				continue
			}
			if c := cmp(students[i], students[j]); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return students[i].ID < students[j].ID
	})
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	all := make([]student.Student, 0, len(repo.db.students))
	for _, std := range repo.db.students {
		all = append(all, std)
	}
	repo.db.mutex.RUnlock()

	var qf student.QueryFilter
	if filter != nil {
		qf = *filter
	}
	students := student.Filter(all, qf)
	sortStudents(students, ordering)
	return students, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.students[std.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	if repo.taken(std.ClassID, std.RollNumber, std.ID) {
		return student.Student{}, student.ErrRollNumberExists
	}
	repo.db.students[std.ID] = std
	for pid, p := range repo.db.papers {
		if p.StudentID.Valid && p.StudentID.String == std.ID && repo.db.tests[p.TestID].ClassID != std.ClassID {
			p.StudentID = null.String{}
			p.AssignedAt = null.Time{}
			repo.db.papers[pid] = p
		}
	}
	return std, nil
}

func (repo *studentRepository) StudentTests(_ context.Context, id string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	for _, p := range repo.db.papers {
		if p.StudentID.Valid && p.StudentID.String == id {
			seen[p.TestID] = true
		}
	}
	for _, ev := range repo.db.evaluations {
		if ev.StudentID == id {
			seen[ev.TestID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for testID := range seen {
		ids = append(ids, testID)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteStudent also deletes the evaluations of the student and unassigns its answer sheets.
func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.students[id]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.students, id)
	for eid, ev := range repo.db.evaluations {
		if ev.StudentID == id {
			delete(repo.db.evaluations, eid)
		}
	}
	for pid, p := range repo.db.papers {
		if p.StudentID.Valid && p.StudentID.String == id {
			p.StudentID = null.String{}
			p.AssignedAt = null.Time{}
			repo.db.papers[pid] = p
		}
	}
	return nil
}

func (repo *studentRepository) CountStudentsInClass(_ context.Context, classID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	var n int
	for _, std := range repo.db.students {
		if std.ClassID == classID {
			n++
		}
	}
	return n, nil
}
