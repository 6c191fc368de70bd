package paper

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

var (
	paperTypeTag  = "papertype"
	paperTypeText = "must be one of: question_paper, answer_sheet, answer_key"
)

// InitValidators registers the paper specific validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paperTypeTag, func(fl validator.FieldLevel) bool {
		return IsKind(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, paperTypeTag, paperTypeText)
}

// ListQuery is the query string of a paper listing.
type ListQuery struct {
	Kind string `query:"kind" validate:"omitempty,papertype"`
}

func (lq *ListQuery) Validate(validate *validator.Validate) error {
	lq.Kind = core.CleanString(lq.Kind, true /* lower */)
	return validate.Struct(lq)
}
