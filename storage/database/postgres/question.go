package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/question"
)

const questionColumns = `id, test_id, number, text, type, options, answer, marks, difficulty, topic, source,
	created_at, updated_at`

type questionRow struct {
	ID         string         `db:"id"`
	TestID     string         `db:"test_id"`
	Number     int            `db:"number"`
	Text       string         `db:"text"`
	Type       string         `db:"type"`
	Options    pq.StringArray `db:"options"`
	Answer     string         `db:"answer"`
	Marks      float64        `db:"marks"`
	Difficulty string         `db:"difficulty"`
	Topic      string         `db:"topic"`
	Source     string         `db:"source"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func toQuestionRow(q question.Question) questionRow {
	opts := pq.StringArray(q.Options)
	if opts == nil {
		opts = pq.StringArray{}
	}
	return questionRow{
		ID:         q.ID,
		TestID:     q.TestID,
		Number:     q.Number,
		Text:       q.Text,
		Type:       q.Type,
		Options:    opts,
		Answer:     q.Answer,
		Marks:      q.Marks,
		Difficulty: q.Difficulty,
		Topic:      q.Topic,
		Source:     q.Source,
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}
}

func (r questionRow) question() question.Question {
	opts := []string(r.Options)
	if opts == nil {
		opts = []string{}
	}
	return question.Question{
		ID:         r.ID,
		TestID:     r.TestID,
		Number:     r.Number,
		Text:       r.Text,
		Type:       r.Type,
		Options:    opts,
		Answer:     r.Answer,
		Marks:      r.Marks,
		Difficulty: r.Difficulty,
		Topic:      r.Topic,
		Source:     r.Source,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type questionRepository struct {
	db *sqlx.DB
}

var _ question.Repository = (*questionRepository)(nil)

func NewQuestionRepository(db *sqlx.DB) *questionRepository {
	return &questionRepository{db: db}
}

const insertQuestion = `INSERT INTO question (` + questionColumns + `) VALUES (:id, :test_id, :number, :text, :type,
	:options, :answer, :marks, :difficulty, :topic, :source, :created_at, :updated_at)`

func (repo *questionRepository) CreateQuestions(ctx context.Context, questions []question.Question) ([]question.Question, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, q := range questions {
			if _, err := tx.NamedExecContext(ctx, insertQuestion, toQuestionRow(q)); err != nil {
				if pqCode(err) == uniqueViolation {
					return question.ErrNumberExists
				}
				return errors.Wrap(err, "inserting question")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (repo *questionRepository) GetQuestion(ctx context.Context, id string) (question.Question, error) {
	if !validID(id) {
		return question.Question{}, question.ErrNotFound
	}
	var row questionRow
	if err := sqlx.GetContext(ctx, repo.db, &row, `SELECT `+questionColumns+` FROM question WHERE id = $1`, id); err != nil {
		return question.Question{}, trapNoRows(err, question.ErrNotFound, "getting question")
	}
	return row.question(), nil
}

func (repo *questionRepository) ListQuestions(ctx context.Context, testID string) ([]question.Question, error) {
	questions := []question.Question{}
	if !validID(testID) {
		return questions, nil
	}
	var rows []questionRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, `SELECT `+questionColumns+` FROM question WHERE test_id = $1 ORDER BY number`, testID); err != nil {
		return nil, errors.Wrap(err, "listing questions")
	}
	for _, row := range rows {
		questions = append(questions, row.question())
	}
	return questions, nil
}

func (repo *questionRepository) UpdateQuestion(ctx context.Context, q question.Question) (question.Question, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE question SET number = :number, text = :text, type = :type, options = :options, answer = :answer,
		marks = :marks, difficulty = :difficulty, topic = :topic, updated_at = :updated_at WHERE id = :id`,
		toQuestionRow(q))
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return question.Question{}, question.ErrNumberExists
		}
		return question.Question{}, errors.Wrap(err, "updating question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return question.Question{}, question.ErrNotFound
	}
	return q, nil
}

func (repo *questionRepository) DeleteQuestion(ctx context.Context, id string) error {
	if !validID(id) {
		return question.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM question WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return question.ErrNotFound
	}
	return nil
}

func (repo *questionRepository) NumberExists(ctx context.Context, testID string, number int, excludeID string) (bool, error) {
	if !validID(testID) {
		return false, nil
	}
	q := `SELECT 1 FROM question WHERE test_id = ? AND number = ?`
	args := []interface{}{testID, number}
	if validID(excludeID) {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	found, err := exists(ctx, repo.db, q, args...)
	return found, errors.Wrap(err, "checking question number")
}

func (repo *questionRepository) MaxNumber(ctx context.Context, testID string) (int, error) {
	if !validID(testID) {
		return 0, nil
	}
	n, err := count(ctx, repo.db, `SELECT COALESCE(max(number), 0) FROM question WHERE test_id = ?`, testID)
	return n, errors.Wrap(err, "getting max question number")
}
