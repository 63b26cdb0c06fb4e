package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns tx when set so callers can compose reads and writes in one transaction.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func ptrFromNull(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

// patch collects "col=?" assignments for partial updates.
type patch struct {
	fields []string
	args   []any
}

func (p *patch) set(col string, v any) {
	p.fields = append(p.fields, col+"=?")
	p.args = append(p.args, v)
}

func (p *patch) empty() bool { return len(p.fields) == 0 }

func (r Repo) applyPatch(ctx context.Context, tx *sql.Tx, table, id string, p patch) error {
	if p.empty() {
		return nil
	}
	args := append(p.args, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(p.fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
