package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"teamdesk/internal/domain"
)

const taskColumns = `id,title,description,milestone_id,assigned_role,assigned_by_id,assigned_by_name,assigned_by_role,priority,status,block_reason,created_by,created_by_name,created_by_role,created_at,due_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var role, reason sql.NullString
	var due sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.MilestoneID, &role, &t.AssignedByID, &t.AssignedByName,
		&t.AssignedByRole, &t.Priority, &t.Status, &reason, &t.CreatedBy, &t.CreatedByName, &t.CreatedByRole,
		&t.CreatedAt, &due)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if role.Valid && role.String != "" {
		r := domain.Role(role.String)
		t.AssignedRole = &r
	}
	t.BlockReason = stringPtr(reason)
	t.DueAt = int64Ptr(due)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	q := r.conn(tx)
	var role any
	if t.AssignedRole != nil {
		role = string(*t.AssignedRole)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.MilestoneID, role, t.AssignedByID, t.AssignedByName, t.AssignedByRole,
		t.Priority, t.Status, nullableStringPtr(t.BlockReason), t.CreatedBy, t.CreatedByName, t.CreatedByRole,
		t.CreatedAt, nullableInt64Ptr(t.DueAt)); err != nil {
		return err
	}
	return r.setAssignees(ctx, q, t.ID, t.AssignedUserIDs)
}

func (r Repo) setAssignees(ctx context.Context, q DBTX, taskID string, uids []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for i, uid := range uids {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id,position) VALUES (?,?,?)`, taskID, uid, i); err != nil {
			return fmt.Errorf("assign %s: %w", uid, err)
		}
	}
	return nil
}

// UpdateTaskStatus writes status and block reason together so the pair never
// disagrees in storage.
func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id string, status domain.TaskStatus, blockReason *string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET status=?, block_reason=? WHERE id=?`, status, nullableStringPtr(blockReason), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	q := r.conn(tx)
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	assignees, err := r.assignees(ctx, q, []string{id})
	if err != nil {
		return t, err
	}
	t.AssignedUserIDs = assignees[id]
	if t.AssignedUserIDs == nil {
		t.AssignedUserIDs = []string{}
	}
	return t, nil
}

func (r Repo) assignees(ctx context.Context, q DBTX, taskIDs []string) (map[string][]string, error) {
	res := map[string][]string{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT task_id,user_id FROM task_assignees WHERE task_id IN (%s) ORDER BY task_id, position`, placeholders(len(taskIDs))), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, uid string
		if err := rows.Scan(&taskID, &uid); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], uid)
	}
	return res, rows.Err()
}

// TaskFilters are the query-by-field selectors of the task collection.
type TaskFilters struct {
	MilestoneIDs []string
	Status       domain.TaskStatus
	AssignedRole domain.Role
	AssigneeID   string
	AssignedByID string
	Limit        int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"1=1"}
	var args []any
	if len(f.MilestoneIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("t.milestone_id IN (%s)", placeholders(len(f.MilestoneIDs))))
		for _, id := range f.MilestoneIDs {
			args = append(args, id)
		}
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.AssignedRole != "" {
		clauses = append(clauses, "t.assigned_role=?")
		args = append(args, f.AssignedRole)
	}
	if f.AssignedByID != "" {
		clauses = append(clauses, "t.assigned_by_id=?")
		args = append(args, f.AssignedByID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id=t.id AND a.user_id=?)")
		args = append(args, f.AssigneeID)
	}
	cols := "t." + strings.ReplaceAll(taskColumns, ",", ",t.")
	query := fmt.Sprintf(`SELECT %s FROM tasks t WHERE %s ORDER BY t.created_at ASC, t.id ASC`, cols, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, len(res))
	for i, t := range res {
		ids[i] = t.ID
	}
	assignees, err := r.assignees(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AssignedUserIDs = assignees[res[i].ID]
		if res[i].AssignedUserIDs == nil {
			res[i].AssignedUserIDs = []string{}
		}
	}
	return res, nil
}

// CountTasksByStatus groups the tasks of a milestone, or of every milestone
// when milestoneID is empty, by status.
func (r Repo) CountTasksByStatus(ctx context.Context, milestoneID string) (map[domain.TaskStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks`
	var args []any
	if milestoneID != "" {
		query += ` WHERE milestone_id=?`
		args = append(args, milestoneID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.TaskStatus]int{}
	for rows.Next() {
		var s domain.TaskStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		res[s] = n
	}
	return res, rows.Err()
}
