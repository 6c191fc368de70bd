package class

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var (
	ErrNotFound     = core.NewNotFoundError("class not found")
	ErrClassExists  = errors.New("a class with this name and section already exists for this academic year")
	ErrHasStudents  = errors.New("cannot delete a class which still has students")
	ErrHasResources = errors.New("cannot delete a class which still has tests")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrClassExists when a Class (other than excludeID) has the same
		// name, section & academic year.
		CheckUniqueness(ctx context.Context, name, section, academicYear, excludeID string) error
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClass(ctx context.Context, id string) error
	}

	StudentCounter interface {
		CountStudentsInClass(ctx context.Context, classID string) (int, error)
	}

	TestCounter interface {
		CountTestsInClass(ctx context.Context, classID string) (int, error)
	}

	// Dependents counts the records attached to a Class.
	Dependents interface {
		StudentCounter
		TestCounter
	}

	dependents struct {
		StudentCounter
		TestCounter
	}

	Service struct {
		repo Repository
		deps Dependents
	}
)

// JoinDependents returns the Dependents counting students & tests with separate repositories.
func JoinDependents(students StudentCounter, tests TestCounter) Dependents {
	return dependents{StudentCounter: students, TestCounter: tests}
}

func NewService(repo Repository, deps Dependents) *Service {
	return &Service{repo: repo, deps: deps}
}

func (svc *Service) checkUniqueness(ctx context.Context, cls Class) error {
	if err := svc.repo.CheckUniqueness(ctx, cls.Name, cls.Section, cls.AcademicYear, cls.ID); err != nil {
		if err == ErrClassExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return errors.Wrap(err, "checking class uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	cls := Class{
		ID:           uuid.NewString(),
		Name:         nc.Name,
		Grade:        nc.Grade,
		Section:      nc.Section,
		AcademicYear: nc.AcademicYear,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := svc.checkUniqueness(ctx, cls); err != nil {
		return Class{}, err
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *Service) Get(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	uc.apply(&cls)
	cls.UpdatedAt = time.Now().UTC()
	if err := svc.checkUniqueness(ctx, cls); err != nil {
		return Class{}, err
	}
	return svc.repo.UpdateClass(ctx, cls)
}

// Delete removes an empty Class. Classes with students or tests are rejected.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetClass(ctx, id); err != nil {
		return err
	}
	n, err := svc.deps.CountStudentsInClass(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	if n > 0 {
		return core.NewValidationError(ErrHasStudents)
	}
	if n, err = svc.deps.CountTestsInClass(ctx, id); err != nil {
		return errors.Wrap(err, "counting tests")
	}
	if n > 0 {
		return core.NewValidationError(ErrHasResources)
	}
	return svc.repo.DeleteClass(ctx, id)
}
