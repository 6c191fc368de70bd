package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

type Class struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Grade        string    `json:"grade" db:"grade"`
	Section      string    `json:"section" db:"section"`
	AcademicYear string    `json:"academic_year" db:"academic_year"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name         string `json:"name" validate:"required,max=100"`
	Grade        string `json:"grade" validate:"max=50"`
	Section      string `json:"section" validate:"max=50"`
	AcademicYear string `json:"academic_year" validate:"max=20"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Grade = core.CleanString(nc.Grade)
	nc.Section = core.CleanString(nc.Section)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class.
// Nil fields are left untouched.
type UpdateClass struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	Grade        *string `json:"grade" validate:"omitempty,max=50"`
	Section      *string `json:"section" validate:"omitempty,max=50"`
	AcademicYear *string `json:"academic_year" validate:"omitempty,max=20"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{uc.Name, uc.Grade, uc.Section, uc.AcademicYear} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(uc)
}

func (uc UpdateClass) apply(cls *Class) {
	if uc.Name != nil {
		cls.Name = *uc.Name
	}
	if uc.Grade != nil {
		cls.Grade = *uc.Grade
	}
	if uc.Section != nil {
		cls.Section = *uc.Section
	}
	if uc.AcademicYear != nil {
		cls.AcademicYear = *uc.AcademicYear
	}
}

type QueryFilter struct {
	Search       string `query:"search"`
	AcademicYear string `query:"academic_year"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
}
