package repo

import (
	"context"
	"database/sql"

	"teamdesk/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.TaskComment) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO task_comments(id,task_id,user_id,user_name,user_role,text,ts,type) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.UserName, c.UserRole, c.Text, c.Timestamp, c.Type)
	return err
}

// ListComments returns the comments of a task, oldest first.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.TaskComment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,user_id,user_name,user_role,text,ts,type FROM task_comments WHERE task_id=? ORDER BY ts ASC, rowid ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskComment
	for rows.Next() {
		var c domain.TaskComment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.UserName, &c.UserRole, &c.Text, &c.Timestamp, &c.Type); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteOrphanComments removes comments whose task no longer exists and
// reports how many were removed.
func (r Repo) DeleteOrphanComments(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_comments WHERE task_id NOT IN (SELECT id FROM tasks)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
