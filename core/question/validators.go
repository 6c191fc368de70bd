package question

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

var (
	questionTypeTag  = "questiontype"
	questionTypeText = "must be one of: mcq, short, long, true_false"

	difficultyTag  = "difficulty"
	difficultyText = "must be one of: easy, medium, hard"

	mcqOptionsTag  = "mcqoptions"
	mcqOptionsText = "multiple choice questions need at least 2 options"

	mcqAnswerTag  = "mcqanswer"
	mcqAnswerText = "the answer must be one of the options"

	trueFalseTag  = "truefalse"
	trueFalseText = "the answer must be true or false"
)

// InitValidators registers the question specific validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(questionTypeTag, oneOfValidation(Types))
	core.RegisterCustomTranslation(validate, translator, questionTypeTag, questionTypeText)

	_ = validate.RegisterValidation(difficultyTag, oneOfValidation(Difficulties))
	core.RegisterCustomTranslation(validate, translator, difficultyTag, difficultyText)

	validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.RegisterCustomTranslation(validate, translator, mcqOptionsTag, mcqOptionsText)
	core.RegisterCustomTranslation(validate, translator, mcqAnswerTag, mcqAnswerText)
	core.RegisterCustomTranslation(validate, translator, trueFalseTag, trueFalseText)
}

func oneOfValidation(valid []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, v := range valid {
			if v == val {
				return true
			}
		}
		return false
	}
}

// questionStructValidation checks the options & answer of a NewQuestion against its type.
func questionStructValidation(sl validator.StructLevel) {
	nq, ok := sl.Current().Interface().(NewQuestion)
	if !ok {
		return
	}
	switch nq.Type {
	case TypeMCQ:
		if len(nq.Options) < 2 {
			sl.ReportError(nq.Options, "options", "Options", mcqOptionsTag, "")
			return
		}
		if nq.Answer != "" {
			for _, o := range nq.Options {
				if o == nq.Answer {
					return
				}
			}
			sl.ReportError(nq.Answer, "answer", "Answer", mcqAnswerTag, "")
		}
	case TypeTrueFalse:
		if nq.Answer != "" && nq.Answer != "true" && nq.Answer != "false" {
			sl.ReportError(nq.Answer, "answer", "Answer", trueFalseTag, "")
		}
	}
}
