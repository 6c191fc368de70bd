// Package pgrepos implements the core repositories on Postgres with sqlx.
package pgrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where accumulates AND-ed conditions written with ? placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// search adds a case-insensitive match of term on any of the columns.
func (w *where) search(term string, columns ...string) {
	if term == "" {
		return
	}
	like := "%" + escapeLike(term) + "%"
	ors := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		ors[i] = col + " ILIKE ?"
		args[i] = like
	}
	w.add("("+strings.Join(ors, " OR ")+")", args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// selectRebind runs a ?-placeholder query.
func selectRebind(ctx context.Context, db sqlx.QueryerContext, dst interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, db, dst, sqlx.Rebind(sqlx.DOLLAR, query), args...)
}

func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func exists(ctx context.Context, db sqlx.QueryerContext, query string, args ...interface{}) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, db, &found, sqlx.Rebind(sqlx.DOLLAR, "SELECT EXISTS ("+query+")"), args...)
	return found, err
}

func count(ctx context.Context, db sqlx.QueryerContext, query string, args ...interface{}) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, db, &n, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return n, err
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
