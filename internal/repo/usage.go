package repo

import (
	"context"
	"database/sql"
	"errors"
)

// UsageCount returns the recorded assistant calls for an actor on a UTC day (YYYY-MM-DD).
func (r Repo) UsageCount(ctx context.Context, actorID, day string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count FROM assistant_usage WHERE actor_id=? AND day=?`, actorID, day).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// TryIncrementUsage bumps the counter only while it is below limit. The check and the
// increment are one statement, so concurrent callers cannot overshoot the limit.
func (r Repo) TryIncrementUsage(ctx context.Context, actorID, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO assistant_usage(actor_id,day,count) VALUES (?,?,1)
ON CONFLICT(actor_id,day) DO UPDATE SET count=count+1 WHERE count < ?`, actorID, day, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
