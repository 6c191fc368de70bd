package student

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
)

var (
	ErrNotFound         = core.NewNotFoundError("student not found")
	ErrRollNumberExists = errors.New("a student with this roll number already exists in this class")
)

type (
	Repository interface {
		// CheckRollNumberUniqueness returns ErrRollNumberExists when another Student (not excludeID)
		// of the class owns rollNumber.
		CheckRollNumberUniqueness(ctx context.Context, classID, rollNumber, excludeID string) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		// UpdateStudent also unassigns the answer sheets of the student in tests of other classes.
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		// DeleteStudent also deletes the evaluations of the student and unassigns its answer sheets.
		DeleteStudent(ctx context.Context, id string) error
		// StudentTests returns the tests where the student has an assigned answer sheet or an evaluation.
		StudentTests(ctx context.Context, id string) ([]string, error)
		CountStudentsInClass(ctx context.Context, classID string) (int, error)
	}

	ClassGetter interface {
		Get(ctx context.Context, id string) (class.Class, error)
	}

	Service struct {
		repo       Repository
		classes    ClassGetter
		cache      core.Cache
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	classes ClassGetter,
	cache core.Cache,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		classes:    classes,
		cache:      cache,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

// invalidate drops the cached paper listings and summaries of tests the student took part in.
func (svc *Service) invalidate(ctx context.Context, testIDs []string) {
	if err := core.InvalidateTests(ctx, svc.cache, testIDs...); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating caches of tests %v: %v", testIDs, err), err)
	}
}

func (svc *Service) checkClass(ctx context.Context, classID string) error {
	if _, err := svc.classes.Get(ctx, classID); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewFieldError("class_id", "class not found")
		}
		return errors.Wrap(err, "getting class")
	}
	return nil
}

func (svc *Service) checkRollNumber(ctx context.Context, classID, rollNumber, excludeID string) error {
	if err := svc.repo.CheckRollNumberUniqueness(ctx, classID, rollNumber, excludeID); err != nil {
		if err == ErrRollNumberExists {
			return core.NewValidationError(err, core.FieldError{Field: "roll_number", Error: err.Error()})
		}
		return errors.Wrap(err, "checking roll number")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkClass(ctx, ns.ClassID); err != nil {
		return Student{}, err
	}
	return svc.create(ctx, ns)
}

// create assumes the class exists.
func (svc *Service) create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkRollNumber(ctx, ns.ClassID, ns.RollNumber, ""); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		ID:            uuid.NewString(),
		ClassID:       ns.ClassID,
		Name:          ns.Name,
		RollNumber:    ns.RollNumber,
		Email:         null.NewString(ns.Email, ns.Email != ""),
		Gender:        ns.Gender,
		DateOfBirth:   parseDate(ns.DateOfBirth),
		GuardianName:  ns.GuardianName,
		GuardianPhone: ns.GuardianPhone,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	prevClassID := std.ClassID

	classID, rollNumber := std.ClassID, std.RollNumber
	if us.ClassID != nil && *us.ClassID != classID {
		if err := svc.checkClass(ctx, *us.ClassID); err != nil {
			return Student{}, err
		}
		classID = *us.ClassID
	}
	if us.RollNumber != nil {
		rollNumber = *us.RollNumber
	}
	if classID != std.ClassID || rollNumber != std.RollNumber {
		if err := svc.checkRollNumber(ctx, classID, rollNumber, std.ID); err != nil {
			return Student{}, err
		}
	}
	std.ClassID, std.RollNumber = classID, rollNumber

	if us.Name != nil {
		std.Name = *us.Name
	}
	if us.Email != nil {
		std.Email = null.NewString(*us.Email, *us.Email != "")
	}
	if us.Gender != nil {
		std.Gender = *us.Gender
	}
	if us.DateOfBirth != nil {
		std.DateOfBirth = parseDate(*us.DateOfBirth)
	}
	if us.GuardianName != nil {
		std.GuardianName = *us.GuardianName
	}
	if us.GuardianPhone != nil {
		std.GuardianPhone = *us.GuardianPhone
	}
	if us.IsActive != nil {
		std.IsActive = *us.IsActive
	}
	std.UpdatedAt = time.Now().UTC()

	var testIDs []string
	if std.ClassID != prevClassID {
		if testIDs, err = svc.repo.StudentTests(ctx, std.ID); err != nil {
			return Student{}, errors.Wrap(err, "listing tests of student")
		}
	}
	std, err = svc.repo.UpdateStudent(ctx, std)
	if err != nil {
		return Student{}, err
	}
	svc.invalidate(ctx, testIDs)
	return std, nil
}

// Delete removes the student with its evaluations. Its answer sheets stay, unassigned.
func (svc *Service) Delete(ctx context.Context, id string) error {
	testIDs, err := svc.repo.StudentTests(ctx, id)
	if err != nil {
		return errors.Wrap(err, "listing tests of student")
	}
	if err := svc.repo.DeleteStudent(ctx, id); err != nil {
		return err
	}
	svc.invalidate(ctx, testIDs)
	return nil
}

func (svc *Service) CountStudentsInClass(ctx context.Context, classID string) (int, error) {
	return svc.repo.CountStudentsInClass(ctx, classID)
}
