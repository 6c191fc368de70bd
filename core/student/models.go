package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
)

const dateLayout = "2006-01-02"

var Genders = []string{"male", "female", "other"}

type Student struct {
	ID            string      `json:"id" db:"id"`
	ClassID       string      `json:"class_id" db:"class_id"`
	Name          string      `json:"name" db:"name"`
	RollNumber    string      `json:"roll_number" db:"roll_number"`
	Email         null.String `json:"email" db:"email"`
	Gender        string      `json:"gender" db:"gender"`
	DateOfBirth   null.Time   `json:"date_of_birth" db:"date_of_birth"`
	GuardianName  string      `json:"guardian_name" db:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone" db:"guardian_phone"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	ClassID       string `json:"class_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=150"`
	RollNumber    string `json:"roll_number" validate:"required,max=30"`
	Email         string `json:"email" validate:"omitempty,email"`
	Gender        string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GuardianName  string `json:"guardian_name" validate:"max=150"`
	GuardianPhone string `json:"guardian_phone" validate:"max=30"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.Name = core.CleanString(ns.Name)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.DateOfBirth = core.CleanString(ns.DateOfBirth)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Nil fields are left untouched.
type UpdateStudent struct {
	ClassID       *string `json:"class_id" validate:"omitempty,min=1"`
	Name          *string `json:"name" validate:"omitempty,min=1,max=150"`
	RollNumber    *string `json:"roll_number" validate:"omitempty,min=1,max=30"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Gender        *string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GuardianName  *string `json:"guardian_name" validate:"omitempty,max=150"`
	GuardianPhone *string `json:"guardian_phone" validate:"omitempty,max=30"`
	IsActive      *bool   `json:"is_active"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{us.ClassID, us.Name, us.RollNumber, us.DateOfBirth, us.GuardianName, us.GuardianPhone} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	for _, fld := range []*string{us.Email, us.Gender} {
		if fld != nil {
			*fld = core.CleanString(*fld, true /* lower */)
		}
	}
	return validate.Struct(us)
}

func parseDate(s string) null.Time {
	if s == "" {
		return null.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return null.Time{}
	}
	return null.TimeFrom(t)
}

type QueryFilter struct {
	Search   string `query:"search"`
	ClassID  string `query:"class_id"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassID = core.CleanString(qf.ClassID)
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.ClassID == "" && qf.IsActive == nil
}
