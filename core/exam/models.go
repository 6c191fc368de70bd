package exam

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
)

// Test statuses
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusArchived  = "archived"

	dateLayout = "2006-01-02"
)

var Statuses = []string{StatusDraft, StatusScheduled, StatusCompleted, StatusArchived}

// Test is an assessment of a class in a subject.
type Test struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	SubjectID    string      `json:"subject_id" db:"subject_id"`
	ClassID      string      `json:"class_id" db:"class_id"`
	TestDate     null.Time   `json:"test_date" db:"test_date"`
	TotalMarks   float64     `json:"total_marks" db:"total_marks"`
	PassingMarks float64     `json:"passing_marks" db:"passing_marks"`
	Status       string      `json:"status" db:"status"`
	Instructions string      `json:"instructions" db:"instructions"`
	CreatedBy    null.String `json:"created_by" db:"created_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// NewTest contains information needed to create a new Test.
type NewTest struct {
	Name         string  `json:"name" validate:"required,max=150"`
	SubjectID    string  `json:"subject_id" validate:"required"`
	ClassID      string  `json:"class_id" validate:"required"`
	TestDate     string  `json:"test_date" validate:"omitempty,datetime=2006-01-02"`
	TotalMarks   float64 `json:"total_marks" validate:"required,gt=0,lte=10000"`
	PassingMarks float64 `json:"passing_marks" validate:"gte=0,ltefield=TotalMarks"`
	Status       string  `json:"status" validate:"omitempty,oneof=draft scheduled completed archived"`
	Instructions string  `json:"instructions" validate:"max=5000"`
}

func (nt *NewTest) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.SubjectID = core.CleanString(nt.SubjectID)
	nt.ClassID = core.CleanString(nt.ClassID)
	nt.TestDate = core.CleanString(nt.TestDate)
	nt.Status = core.CleanString(nt.Status, true /* lower */)
	if nt.Status == "" {
		nt.Status = StatusDraft
	}
	return validate.Struct(nt)
}

// UpdateTest defines what information may be provided to modify an existing Test.
// Nil fields are left untouched; the class of a Test cannot change.
type UpdateTest struct {
	Name         *string  `json:"name" validate:"omitempty,min=1,max=150"`
	SubjectID    *string  `json:"subject_id" validate:"omitempty,min=1"`
	TestDate     *string  `json:"test_date" validate:"omitempty,datetime=2006-01-02"`
	TotalMarks   *float64 `json:"total_marks" validate:"omitempty,gt=0,lte=10000"`
	PassingMarks *float64 `json:"passing_marks" validate:"omitempty,gte=0"`
	Status       *string  `json:"status" validate:"omitempty,oneof=draft scheduled completed archived"`
	Instructions *string  `json:"instructions" validate:"omitempty,max=5000"`
}

func (ut *UpdateTest) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{ut.Name, ut.SubjectID, ut.TestDate} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	if ut.Status != nil {
		*ut.Status = core.CleanString(*ut.Status, true /* lower */)
	}
	return validate.Struct(ut)
}

func parseDate(s string) null.Time {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return null.TimeFrom(t)
	}
	return null.Time{}
}

type QueryFilter struct {
	Search    string    `query:"search"`
	ClassID   string    `query:"class_id"`
	SubjectID string    `query:"subject_id"`
	Status    []string  `query:"status"`
	DateFrom  time.Time `query:"date_from"`
	DateTo    time.Time `query:"date_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.SubjectID = core.CleanString(qf.SubjectID)
}

// Matches reports whether tst satisfies every non-empty field of the filter.
func (qf *QueryFilter) Matches(tst Test) bool {
	if qf.ClassID != "" && tst.ClassID != qf.ClassID {
		return false
	}
	if qf.SubjectID != "" && tst.SubjectID != qf.SubjectID {
		return false
	}
	if len(qf.Status) > 0 {
		var found bool
		for _, s := range qf.Status {
			if s == tst.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !qf.DateFrom.IsZero() && (!tst.TestDate.Valid || tst.TestDate.Time.Before(qf.DateFrom)) {
		return false
	}
	if !qf.DateTo.IsZero() && (!tst.TestDate.Valid || tst.TestDate.Time.After(qf.DateTo)) {
		return false
	}
	return qf.Search == "" || core.ContainsFold(tst.Name, qf.Search) || core.ContainsFold(tst.Instructions, qf.Search)
}
