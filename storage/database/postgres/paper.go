package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/paper"
)

const paperColumns = `id, test_id, student_id, kind, filename, storage_key, content_type, size, document_type,
	uploaded_by, assigned_at, created_at`

type paperRepository struct {
	db *sqlx.DB
}

var _ paper.Repository = (*paperRepository)(nil)

func NewPaperRepository(db *sqlx.DB) *paperRepository {
	return &paperRepository{db: db}
}

func (repo *paperRepository) CreatePaper(ctx context.Context, p paper.Paper) (paper.Paper, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO paper (`+paperColumns+`) VALUES (:id, :test_id, :student_id, :kind, :filename, :storage_key,
		:content_type, :size, :document_type, :uploaded_by, :assigned_at, :created_at)`,
		p)
	if err != nil {
		return paper.Paper{}, errors.Wrap(err, "inserting paper")
	}
	return p, nil
}

func (repo *paperRepository) GetPaper(ctx context.Context, id string) (paper.Paper, error) {
	if !validID(id) {
		return paper.Paper{}, paper.ErrNotFound
	}
	var p paper.Paper
	if err := sqlx.GetContext(ctx, repo.db, &p, `SELECT `+paperColumns+` FROM paper WHERE id = $1`, id); err != nil {
		return paper.Paper{}, trapNoRows(err, paper.ErrNotFound, "getting paper")
	}
	return p, nil
}

func (repo *paperRepository) ListPapers(ctx context.Context, testID, kind string) ([]paper.Paper, error) {
	papers := []paper.Paper{}
	if !validID(testID) {
		return papers, nil
	}
	var w where
	w.add("test_id = ?", testID)
	if kind != "" {
		w.add("kind = ?", kind)
	}
	if err := selectRebind(ctx, repo.db, &papers, `SELECT `+paperColumns+` FROM paper`+w.String()+` ORDER BY created_at, filename`, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing papers")
	}
	return papers, nil
}

func (repo *paperRepository) UpdatePaper(ctx context.Context, p paper.Paper) (paper.Paper, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE paper SET student_id = :student_id, assigned_at = :assigned_at, filename = :filename WHERE id = :id`,
		p)
	if err != nil {
		return paper.Paper{}, errors.Wrap(err, "updating paper")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return paper.Paper{}, paper.ErrNotFound
	}
	return p, nil
}

func (repo *paperRepository) DeletePaper(ctx context.Context, id string) error {
	if !validID(id) {
		return paper.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM paper WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting paper")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return paper.ErrNotFound
	}
	return nil
}

func (repo *paperRepository) StorageKeyExists(ctx context.Context, key string) (bool, error) {
	found, err := exists(ctx, repo.db, `SELECT 1 FROM paper WHERE storage_key = ?`, key)
	return found, errors.Wrap(err, "checking storage key")
}
