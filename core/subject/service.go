package subject

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
)

var (
	ErrNotFound   = core.NewNotFoundError("subject not found")
	ErrCodeExists = errors.New("a subject with this code already exists")
	ErrInUse      = errors.New("cannot delete a subject which still has tests")
)

type (
	Repository interface {
		// CheckCodeUniqueness returns ErrCodeExists when another Subject (not excludeID) owns code.
		CheckCodeUniqueness(ctx context.Context, code, excludeID string) error
		CreateSubject(ctx context.Context, sbj Subject) (Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		QuerySubjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subject, error)
		UpdateSubject(ctx context.Context, sbj Subject) (Subject, error)
		// DeleteSubject returns ErrInUse when tests still reference the Subject.
		DeleteSubject(ctx context.Context, id string) error
	}

	ClassGetter interface {
		Get(ctx context.Context, id string) (class.Class, error)
	}

	Service struct {
		repo    Repository
		classes ClassGetter
	}
)

func NewService(repo Repository, classes ClassGetter) *Service {
	return &Service{repo: repo, classes: classes}
}

func (svc *Service) checkClass(ctx context.Context, classID string) error {
	if classID == "" {
		return nil
	}
	if _, err := svc.classes.Get(ctx, classID); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewFieldError("class_id", "class not found")
		}
		return errors.Wrap(err, "getting class")
	}
	return nil
}

func (svc *Service) checkCode(ctx context.Context, code, excludeID string) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excludeID); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "checking subject code")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	if err := svc.checkClass(ctx, ns.ClassID); err != nil {
		return Subject{}, err
	}
	if err := svc.checkCode(ctx, ns.Code, ""); err != nil {
		return Subject{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		ID:          uuid.NewString(),
		ClassID:     null.NewString(ns.ClassID, ns.ClassID != ""),
		Name:        ns.Name,
		Code:        ns.Code,
		Description: ns.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateSubject) (Subject, error) {
	sbj, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if us.ClassID != nil {
		if err := svc.checkClass(ctx, *us.ClassID); err != nil {
			return Subject{}, err
		}
		sbj.ClassID = null.NewString(*us.ClassID, *us.ClassID != "")
	}
	if us.Code != nil && *us.Code != sbj.Code {
		if err := svc.checkCode(ctx, *us.Code, sbj.ID); err != nil {
			return Subject{}, err
		}
		sbj.Code = *us.Code
	}
	if us.Name != nil {
		sbj.Name = *us.Name
	}
	if us.Description != nil {
		sbj.Description = *us.Description
	}
	sbj.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, sbj)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteSubject(ctx, id); err != nil {
		if err == ErrInUse {
			return core.NewValidationError(err)
		}
		return err
	}
	return nil
}
