package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/subject"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) taken(name, section, academicYear, excludeID string) bool {
	for _, cls := range repo.db.classes {
		if cls.ID != excludeID && strings.EqualFold(cls.Name, name) &&
			cls.Section == section && cls.AcademicYear == academicYear {
			return true
		}
	}
	return false
}

func (repo *classRepository) CheckUniqueness(_ context.Context, name, section, academicYear, excludeID string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if repo.taken(name, section, academicYear, excludeID) {
		return class.ErrClassExists
	}
	return nil
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if repo.taken(cls.Name, cls.Section, cls.AcademicYear, cls.ID) {
		return class.Class{}, class.ErrClassExists
	}
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if cls, ok := repo.db.classes[id]; ok {
		return cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClasses(_ context.Context, filter *class.QueryFilter, _ []core.DBOrdering) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if filter != nil {
			if filter.Search != "" && !core.ContainsFold(cls.Name, filter.Search) &&
				!core.ContainsFold(cls.Grade, filter.Search) && !core.ContainsFold(cls.Section, filter.Search) {
				continue
			}
			if filter.AcademicYear != "" && cls.AcademicYear != filter.AcademicYear {
				continue
			}
		}
		classes = append(classes, cls)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].Section < classes[j].Section
	})
	return classes, nil
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.classes[cls.ID]; !ok {
		return class.Class{}, class.ErrNotFound
	}
	if repo.taken(cls.Name, cls.Section, cls.AcademicYear, cls.ID) {
		return class.Class{}, class.ErrClassExists
	}
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	for _, std := range repo.db.students {
		if std.ClassID == id {
			return core.NewValidationError(class.ErrHasStudents)
		}
	}
	for _, tst := range repo.db.tests {
		if tst.ClassID == id {
			return core.NewValidationError(class.ErrHasResources)
		}
	}
	delete(repo.db.classes, id)
	for sid, sbj := range repo.db.subjects {
		if sbj.ClassID.Valid && sbj.ClassID.String == id {
			sbj.ClassID = null.String{}
			repo.db.subjects[sid] = sbj
		}
	}
	return nil
}

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *DB) *subjectRepository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) taken(code, excludeID string) bool {
	for _, sbj := range repo.db.subjects {
		if sbj.ID != excludeID && sbj.Code == code {
			return true
		}
	}
	return false
}

func (repo *subjectRepository) CheckCodeUniqueness(_ context.Context, code, excludeID string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if repo.taken(code, excludeID) {
		return subject.ErrCodeExists
	}
	return nil
}

func (repo *subjectRepository) CreateSubject(_ context.Context, sbj subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if repo.taken(sbj.Code, sbj.ID) {
		return subject.Subject{}, subject.ErrCodeExists
	}
	repo.db.subjects[sbj.ID] = sbj
	return sbj, nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, id string) (subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if sbj, ok := repo.db.subjects[id]; ok {
		return sbj, nil
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) QuerySubjects(_ context.Context, filter *subject.QueryFilter, _ []core.DBOrdering) ([]subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]subject.Subject, 0, len(repo.db.subjects))
	for _, sbj := range repo.db.subjects {
		if filter != nil {
			if filter.Search != "" && !core.ContainsFold(sbj.Name, filter.Search) && !core.ContainsFold(sbj.Code, filter.Search) {
				continue
			}
			if filter.ClassID != "" && sbj.ClassID.String != filter.ClassID {
				continue
			}
		}
		subjects = append(subjects, sbj)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, sbj subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.subjects[sbj.ID]; !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	if repo.taken(sbj.Code, sbj.ID) {
		return subject.Subject{}, subject.ErrCodeExists
	}
	repo.db.subjects[sbj.ID] = sbj
	return sbj, nil
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.subjects[id]; !ok {
		return subject.ErrNotFound
	}
	for _, tst := range repo.db.tests {
		if tst.SubjectID == id {
			return subject.ErrInUse
		}
	}
	delete(repo.db.subjects, id)
	return nil
}
