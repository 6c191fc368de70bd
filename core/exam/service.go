package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/subject"
)

var (
	ErrNotFound          = core.NewNotFoundError("test not found")
	ErrPassingAboveTotal = errors.New("passing marks cannot be greater than total marks")
	ErrSubjectOtherClass = errors.New("the subject belongs to another class")
)

type (
	Repository interface {
		CreateTest(ctx context.Context, tst Test) (Test, error)
		GetTest(ctx context.Context, id string) (Test, error)
		QueryTests(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error)
		UpdateTest(ctx context.Context, tst Test) (Test, error)
		DeleteTest(ctx context.Context, id string) error
		CountTestsInClass(ctx context.Context, classID string) (int, error)
	}

	ClassGetter interface {
		Get(ctx context.Context, id string) (class.Class, error)
	}

	SubjectGetter interface {
		Get(ctx context.Context, id string) (subject.Subject, error)
	}

	Service struct {
		repo     Repository
		classes  ClassGetter
		subjects SubjectGetter
		cache    core.Cache
		logger   core.Logger
	}
)

func NewService(repo Repository, classes ClassGetter, subjects SubjectGetter, cache core.Cache, logger core.Logger) *Service {
	return &Service{repo: repo, classes: classes, subjects: subjects, cache: cache, logger: logger}
}

func (svc *Service) checkRefs(ctx context.Context, classID, subjectID string) error {
	if _, err := svc.classes.Get(ctx, classID); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewFieldError("class_id", "class not found")
		}
		return errors.Wrap(err, "getting class")
	}
	sbj, err := svc.subjects.Get(ctx, subjectID)
	if err != nil {
		if errors.Cause(err) == subject.ErrNotFound {
			return core.NewFieldError("subject_id", "subject not found")
		}
		return errors.Wrap(err, "getting subject")
	}
	if sbj.ClassID.Valid && sbj.ClassID.String != classID {
		return core.NewFieldError("subject_id", ErrSubjectOtherClass.Error())
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTest, createdBy string) (Test, error) {
	if err := svc.checkRefs(ctx, nt.ClassID, nt.SubjectID); err != nil {
		return Test{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateTest(ctx, Test{
		ID:           uuid.NewString(),
		Name:         nt.Name,
		SubjectID:    nt.SubjectID,
		ClassID:      nt.ClassID,
		TestDate:     parseDate(nt.TestDate),
		TotalMarks:   nt.TotalMarks,
		PassingMarks: nt.PassingMarks,
		Status:       nt.Status,
		Instructions: nt.Instructions,
		CreatedBy:    null.NewString(createdBy, createdBy != ""),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Test, error) {
	return svc.repo.GetTest(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error) {
	return svc.repo.QueryTests(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, ut UpdateTest) (Test, error) {
	tst, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	if ut.SubjectID != nil && *ut.SubjectID != tst.SubjectID {
		if err := svc.checkRefs(ctx, tst.ClassID, *ut.SubjectID); err != nil {
			return Test{}, err
		}
		tst.SubjectID = *ut.SubjectID
	}
	if ut.Name != nil {
		tst.Name = *ut.Name
	}
	if ut.TestDate != nil {
		tst.TestDate = parseDate(*ut.TestDate)
	}
	if ut.TotalMarks != nil {
		tst.TotalMarks = *ut.TotalMarks
	}
	if ut.PassingMarks != nil {
		tst.PassingMarks = *ut.PassingMarks
	}
	if tst.PassingMarks > tst.TotalMarks {
		return Test{}, core.NewValidationError(ErrPassingAboveTotal, core.FieldError{Field: "passing_marks", Error: ErrPassingAboveTotal.Error()})
	}
	if ut.Status != nil {
		tst.Status = *ut.Status
	}
	if ut.Instructions != nil {
		tst.Instructions = *ut.Instructions
	}
	tst.UpdatedAt = time.Now().UTC()
	if tst, err = svc.repo.UpdateTest(ctx, tst); err != nil {
		return Test{}, err
	}
	// the summary depends on the marks
	if err := svc.cache.Delete(ctx, core.ReportCacheKey(tst.ID)); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating report cache of test %s: %v", tst.ID, err), err)
	}
	return tst, nil
}

// SetStatus moves a Test to status without touching anything else.
func (svc *Service) SetStatus(ctx context.Context, id, status string) (Test, error) {
	return svc.Update(ctx, id, UpdateTest{Status: &status})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteTest(ctx, id)
}

func (svc *Service) CountTestsInClass(ctx context.Context, classID string) (int, error) {
	return svc.repo.CountTestsInClass(ctx, classID)
}
