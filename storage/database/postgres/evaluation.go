package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/evaluation"
)

const evaluationColumns = `id, test_id, student_id, paper_id, status, attempts, max_attempts, score, total_marks,
	feedback, results, last_error, next_attempt_at, started_at, completed_at, created_at, updated_at`

type evaluationRepository struct {
	db *sqlx.DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil)

func NewEvaluationRepository(db *sqlx.DB) *evaluationRepository {
	return &evaluationRepository{db: db}
}

const insertEvaluation = `INSERT INTO evaluation (` + evaluationColumns + `) VALUES (:id, :test_id, :student_id,
	:paper_id, :status, :attempts, :max_attempts, :score, :total_marks, :feedback, :results, :last_error,
	:next_attempt_at, :started_at, :completed_at, :created_at, :updated_at)`

func (repo *evaluationRepository) CreateEvaluations(ctx context.Context, evs []evaluation.Evaluation) ([]evaluation.Evaluation, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, ev := range evs {
			if _, err := tx.NamedExecContext(ctx, insertEvaluation, ev); err != nil {
				return errors.Wrap(err, "inserting evaluation")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}

func (repo *evaluationRepository) GetEvaluation(ctx context.Context, id string) (evaluation.Evaluation, error) {
	if !validID(id) {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	var ev evaluation.Evaluation
	if err := sqlx.GetContext(ctx, repo.db, &ev, `SELECT `+evaluationColumns+` FROM evaluation WHERE id = $1`, id); err != nil {
		return evaluation.Evaluation{}, trapNoRows(err, evaluation.ErrNotFound, "getting evaluation")
	}
	return ev, nil
}

func (repo *evaluationRepository) QueryEvaluations(ctx context.Context, filter evaluation.QueryFilter) ([]evaluation.Evaluation, error) {
	evs := []evaluation.Evaluation{}
	var w where
	if filter.TestID != "" {
		if !validID(filter.TestID) {
			return evs, nil
		}
		w.add("test_id = ?", filter.TestID)
	}
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return evs, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if len(filter.Status) > 0 {
		w.add("status = ANY(?)", pq.StringArray(filter.Status))
	}
	if err := selectRebind(ctx, repo.db, &evs, `SELECT `+evaluationColumns+` FROM evaluation`+w.String()+` ORDER BY created_at, id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	return evs, nil
}

func (repo *evaluationRepository) UpdateEvaluation(ctx context.Context, ev evaluation.Evaluation) (evaluation.Evaluation, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE evaluation SET status = :status, attempts = :attempts, max_attempts = :max_attempts, score = :score,
		total_marks = :total_marks, feedback = :feedback, results = :results, last_error = :last_error,
		next_attempt_at = :next_attempt_at, started_at = :started_at, completed_at = :completed_at,
		updated_at = :updated_at WHERE id = :id`,
		ev)
	if err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	return ev, nil
}

// ClaimDue relies on SKIP LOCKED so that concurrent workers never claim the same row.
func (repo *evaluationRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]evaluation.Evaluation, error) {
	evs := []evaluation.Evaluation{}
	err := sqlx.SelectContext(ctx, repo.db, &evs,
		`UPDATE evaluation SET status = $1, attempts = attempts + 1, started_at = $2, updated_at = $2
		WHERE id IN (
			SELECT id FROM evaluation WHERE status = $3 AND next_attempt_at <= $2
			ORDER BY next_attempt_at, created_at LIMIT $4 FOR UPDATE SKIP LOCKED
		)
		RETURNING `+evaluationColumns,
		evaluation.StatusProcessing, now, evaluation.StatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "claiming due evaluations")
	}
	return evs, nil
}

func (repo *evaluationRepository) RequeueStale(ctx context.Context, before time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE evaluation SET status = $1, next_attempt_at = started_at, updated_at = $3
		WHERE status = $2 AND started_at < $3`,
		evaluation.StatusPending, evaluation.StatusProcessing, before)
	if err != nil {
		return 0, errors.Wrap(err, "requeueing stale evaluations")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo *evaluationRepository) CountByStatus(ctx context.Context, testID string) (map[string]int, error) {
	counts := make(map[string]int)
	if !validID(testID) {
		return counts, nil
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, repo.db, &rows,
		`SELECT status, count(*) AS count FROM evaluation WHERE test_id = $1 GROUP BY status`, testID); err != nil {
		return nil, errors.Wrap(err, "counting evaluations")
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (repo *evaluationRepository) MarkNotified(ctx context.Context, testID string, at time.Time) (bool, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO test_notification (test_id, sent_at) VALUES ($1, $2) ON CONFLICT (test_id) DO NOTHING`,
		testID, at)
	if err != nil {
		return false, errors.Wrap(err, "marking test notified")
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *evaluationRepository) ClearNotified(ctx context.Context, testID string) error {
	if !validID(testID) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM test_notification WHERE test_id = $1`, testID)
	return errors.Wrap(err, "clearing test notification")
}
