package question

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
)

var (
	ErrNotFound     = core.NewNotFoundError("question not found")
	ErrNumberExists = errors.New("a question with this number already exists for this test")
)

type (
	Repository interface {
		// CreateQuestions creates all questions or none.
		CreateQuestions(ctx context.Context, questions []Question) ([]Question, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		// ListQuestions returns the questions of a test ordered by number.
		ListQuestions(ctx context.Context, testID string) ([]Question, error)
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		DeleteQuestion(ctx context.Context, id string) error
		// NumberExists reports whether a question (other than excludeID) of the test has number.
		NumberExists(ctx context.Context, testID string, number int, excludeID string) (bool, error)
		// MaxNumber returns the highest question number of a test, 0 when it has no questions.
		MaxNumber(ctx context.Context, testID string) (int, error)
	}

	TestGetter interface {
		Get(ctx context.Context, id string) (exam.Test, error)
	}

	Service struct {
		repo     Repository
		tests    TestGetter
		ai       core.ChatCompleter
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, tests TestGetter, ai core.ChatCompleter, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		tests:    tests,
		ai:       ai,
		validate: validate,
		logger:   logger,
	}
}

func (svc *Service) checkNumber(ctx context.Context, testID string, number int, excludeID string) error {
	exists, err := svc.repo.NumberExists(ctx, testID, number, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking question number")
	}
	if exists {
		return core.NewValidationError(ErrNumberExists, core.FieldError{Field: "number", Error: ErrNumberExists.Error()})
	}
	return nil
}

func newQuestion(testID string, number int, nq NewQuestion, source string, now time.Time) Question {
	return Question{
		ID:         uuid.NewString(),
		TestID:     testID,
		Number:     number,
		Text:       nq.Text,
		Type:       nq.Type,
		Options:    nq.Options,
		Answer:     nq.Answer,
		Marks:      nq.Marks,
		Difficulty: nq.Difficulty,
		Topic:      nq.Topic,
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (svc *Service) Create(ctx context.Context, testID string, nq NewQuestion) (Question, error) {
	if _, err := svc.tests.Get(ctx, testID); err != nil {
		return Question{}, err
	}
	number := nq.Number
	if number == 0 {
		max, err := svc.repo.MaxNumber(ctx, testID)
		if err != nil {
			return Question{}, errors.Wrap(err, "getting max question number")
		}
		number = max + 1
	} else if err := svc.checkNumber(ctx, testID, number, ""); err != nil {
		return Question{}, err
	}

	created, err := svc.repo.CreateQuestions(ctx, []Question{newQuestion(testID, number, nq, SourceManual, time.Now().UTC())})
	if err != nil {
		return Question{}, errors.Wrap(err, "creating question")
	}
	return created[0], nil
}

func (svc *Service) Get(ctx context.Context, id string) (Question, error) {
	return svc.repo.GetQuestion(ctx, id)
}

func (svc *Service) ListForTest(ctx context.Context, testID string) ([]Question, error) {
	if _, err := svc.tests.Get(ctx, testID); err != nil {
		return nil, err
	}
	return svc.repo.ListQuestions(ctx, testID)
}

func (svc *Service) Update(ctx context.Context, id string, uq UpdateQuestion) (Question, error) {
	q, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	nq := uq.apply(q)
	if err := nq.Validate(svc.validate); err != nil {
		return Question{}, err
	}
	if nq.Number != q.Number {
		if err := svc.checkNumber(ctx, q.TestID, nq.Number, q.ID); err != nil {
			return Question{}, err
		}
	}

	updated := newQuestion(q.TestID, nq.Number, nq, q.Source, q.CreatedAt)
	updated.ID = q.ID
	updated.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateQuestion(ctx, updated)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteQuestion(ctx, id)
}

// TotalMarks sums the marks of the questions.
func TotalMarks(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Marks
	}
	return total
}

// Generate asks the AI for new questions and appends the valid ones to the test.
func (svc *Service) Generate(ctx context.Context, testID string, gr GenerateRequest) ([]Question, error) {
	tst, err := svc.tests.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	existing, err := svc.repo.ListQuestions(ctx, testID)
	if err != nil {
		return nil, errors.Wrap(err, "listing questions")
	}

	content, err := svc.ai.Complete(ctx, core.ChatRequest{
		System: generateSystemPrompt,
		Prompt: buildGeneratePrompt(tst, gr, existing),
		JSON:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "generating questions")
	}

	generated, err := ParseGenerated(content)
	if err != nil {
		return nil, errors.Wrap(err, "parsing generated questions")
	}

	next := 1
	for _, q := range existing {
		if q.Number >= next {
			next = q.Number + 1
		}
	}
	now := time.Now().UTC()
	questions := make([]Question, 0, len(generated))
	for i, nq := range generated {
		if len(questions) == gr.Count {
			break
		}
		nq.Number = 0
		if nq.Difficulty == "" {
			nq.Difficulty = gr.Difficulty
		}
		if nq.Topic == "" {
			nq.Topic = gr.Topic
		}
		if nq.Marks <= 0 {
			nq.Marks = 1
		}
		if err := nq.Validate(svc.validate); err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping generated question %d of test %s: %v", i+1, testID, err))
			continue
		}
		questions = append(questions, newQuestion(testID, next, nq, SourceAI, now))
		next++
	}
	if len(questions) == 0 {
		return nil, ErrNothingGenerated
	}

	created, err := svc.repo.CreateQuestions(ctx, questions)
	if err != nil {
		return nil, errors.Wrap(err, "creating questions")
	}
	return created, nil
}
