package subject

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
)

type Subject struct {
	ID          string      `json:"id" db:"id"`
	ClassID     null.String `json:"class_id" db:"class_id"`
	Name        string      `json:"name" db:"name"`
	Code        string      `json:"code" db:"code"`
	Description string      `json:"description" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

func cleanCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

// NewSubject contains information needed to create a new Subject.
type NewSubject struct {
	ClassID     string `json:"class_id" validate:"omitempty,uuid"`
	Name        string `json:"name" validate:"required,max=100"`
	Code        string `json:"code" validate:"required,max=20,alphanum_"`
	Description string `json:"description" validate:"max=1000"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.Name = core.CleanString(ns.Name)
	ns.Code = cleanCode(ns.Code)
	ns.Description = strings.TrimSpace(ns.Description)
	return validate.Struct(ns)
}

// UpdateSubject defines what information may be provided to modify an existing Subject.
// An empty ClassID detaches the Subject from its class.
type UpdateSubject struct {
	ClassID     *string `json:"class_id" validate:"omitempty"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Code        *string `json:"code" validate:"omitempty,min=1,max=20,alphanum_"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if us.ClassID != nil {
		*us.ClassID = core.CleanString(*us.ClassID)
	}
	if us.Name != nil {
		*us.Name = core.CleanString(*us.Name)
	}
	if us.Code != nil {
		*us.Code = cleanCode(*us.Code)
	}
	if us.Description != nil {
		*us.Description = strings.TrimSpace(*us.Description)
	}
	return validate.Struct(us)
}

type QueryFilter struct {
	Search  string `query:"search"`
	ClassID string `query:"class_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassID = core.CleanString(qf.ClassID)
}
