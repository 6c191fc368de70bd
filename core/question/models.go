package question

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

// Question types
const (
	TypeMCQ       = "mcq"
	TypeShort     = "short"
	TypeLong      = "long"
	TypeTrueFalse = "true_false"
)

// Difficulties
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Sources
const (
	SourceManual = "manual"
	SourceAI     = "ai"
)

var (
	Types        = []string{TypeMCQ, TypeShort, TypeLong, TypeTrueFalse}
	Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}
)

type Question struct {
	ID         string    `json:"id" db:"id"`
	TestID     string    `json:"test_id" db:"test_id"`
	Number     int       `json:"number" db:"number"`
	Text       string    `json:"text" db:"text"`
	Type       string    `json:"type" db:"type"`
	Options    []string  `json:"options" db:"options"`
	Answer     string    `json:"answer" db:"answer"`
	Marks      float64   `json:"marks" db:"marks"`
	Difficulty string    `json:"difficulty" db:"difficulty"`
	Topic      string    `json:"topic" db:"topic"`
	Source     string    `json:"source" db:"source"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// NewQuestion contains information needed to create a new Question.
// A zero Number appends the question after the existing ones.
type NewQuestion struct {
	Number     int      `json:"number" validate:"gte=0,lte=1000"`
	Text       string   `json:"text" validate:"required,max=5000"`
	Type       string   `json:"type" validate:"required,questiontype"`
	Options    []string `json:"options" validate:"omitempty,max=10,dive,required,max=500"`
	Answer     string   `json:"answer" validate:"max=5000"`
	Marks      float64  `json:"marks" validate:"gt=0,lte=1000"`
	Difficulty string   `json:"difficulty" validate:"omitempty,difficulty"`
	Topic      string   `json:"topic" validate:"max=200"`
}

func cleanOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if o = core.CleanString(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// NormalizeType maps common spellings ("Multiple Choice", "true/false") to a question type.
func NormalizeType(t string) string {
	t = strings.Trim(strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(core.CleanString(t, true /* lower */)), "_")
	switch t {
	case "multiple_choice", "multiplechoice", "choice", "objective":
		return TypeMCQ
	case "short_answer":
		return TypeShort
	case "long_answer", "essay":
		return TypeLong
	case "truefalse", "true_or_false", "boolean":
		return TypeTrueFalse
	}
	return t
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Text = strings.TrimSpace(nq.Text)
	nq.Type = NormalizeType(nq.Type)
	nq.Options = cleanOptions(nq.Options)
	nq.Answer = strings.TrimSpace(nq.Answer)
	nq.Difficulty = core.CleanString(nq.Difficulty, true /* lower */)
	if nq.Difficulty == "" {
		nq.Difficulty = DifficultyMedium
	}
	nq.Topic = core.CleanString(nq.Topic)
	if nq.Type != TypeMCQ {
		nq.Options = []string{}
	}
	if nq.Type == TypeTrueFalse {
		nq.Answer = strings.ToLower(nq.Answer)
	}
	return validate.Struct(nq)
}

// UpdateQuestion defines what information may be provided to modify an existing Question.
type UpdateQuestion struct {
	Number     *int      `json:"number" validate:"omitempty,gte=1,lte=1000"`
	Text       *string   `json:"text" validate:"omitempty,min=1,max=5000"`
	Type       *string   `json:"type" validate:"omitempty,questiontype"`
	Options    *[]string `json:"options" validate:"omitempty"`
	Answer     *string   `json:"answer" validate:"omitempty,max=5000"`
	Marks      *float64  `json:"marks" validate:"omitempty,gt=0,lte=1000"`
	Difficulty *string   `json:"difficulty" validate:"omitempty,difficulty"`
	Topic      *string   `json:"topic" validate:"omitempty,max=200"`
}

func (uq *UpdateQuestion) Validate(validate *validator.Validate) error {
	if uq.Text != nil {
		*uq.Text = strings.TrimSpace(*uq.Text)
	}
	if uq.Type != nil {
		*uq.Type = NormalizeType(*uq.Type)
	}
	if uq.Options != nil {
		*uq.Options = cleanOptions(*uq.Options)
	}
	if uq.Difficulty != nil {
		*uq.Difficulty = core.CleanString(*uq.Difficulty, true /* lower */)
	}
	return validate.Struct(uq)
}

// apply returns q updated with uq as a NewQuestion, so that the merged result goes through
// the same struct validation as a creation.
func (uq UpdateQuestion) apply(q Question) NewQuestion {
	nq := NewQuestion{
		Number:     q.Number,
		Text:       q.Text,
		Type:       q.Type,
		Options:    q.Options,
		Answer:     q.Answer,
		Marks:      q.Marks,
		Difficulty: q.Difficulty,
		Topic:      q.Topic,
	}
	if uq.Number != nil {
		nq.Number = *uq.Number
	}
	if uq.Text != nil {
		nq.Text = *uq.Text
	}
	if uq.Type != nil {
		nq.Type = *uq.Type
	}
	if uq.Options != nil {
		nq.Options = *uq.Options
	}
	if uq.Answer != nil {
		nq.Answer = *uq.Answer
	}
	if uq.Marks != nil {
		nq.Marks = *uq.Marks
	}
	if uq.Difficulty != nil {
		nq.Difficulty = *uq.Difficulty
	}
	if uq.Topic != nil {
		nq.Topic = *uq.Topic
	}
	return nq
}

// GenerateRequest asks the AI for new questions for a test.
type GenerateRequest struct {
	Count        int      `json:"count" validate:"required,min=1,max=50"`
	Difficulty   string   `json:"difficulty" validate:"omitempty,difficulty"`
	Types        []string `json:"types" validate:"omitempty,dive,questiontype"`
	Topic        string   `json:"topic" validate:"max=200"`
	Instructions string   `json:"instructions" validate:"max=2000"`
}

func (gr *GenerateRequest) Validate(validate *validator.Validate) error {
	gr.Difficulty = core.CleanString(gr.Difficulty, true /* lower */)
	for i := range gr.Types {
		gr.Types[i] = NormalizeType(gr.Types[i])
	}
	gr.Topic = core.CleanString(gr.Topic)
	gr.Instructions = strings.TrimSpace(gr.Instructions)
	return validate.Struct(gr)
}
