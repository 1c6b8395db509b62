package repo

import (
	"context"
	"database/sql"

	"teamdesk/internal/domain"
)

const milestoneColumns = `id,team_id,title,deadline,status,progress,created_by,created_by_name,created_at,updated_at`

func scanMilestone(row rowScanner) (domain.Milestone, error) {
	var m domain.Milestone
	var team sql.NullString
	var deadline sql.NullInt64
	err := row.Scan(&m.ID, &team, &m.Title, &deadline, &m.Status, &m.Progress, &m.CreatedBy, &m.CreatedByName, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.TeamID = stringPtr(team)
	m.Deadline = int64Ptr(deadline)
	return m, err
}

// UpsertMilestone inserts the milestone or replaces its mutable fields,
// keeping the original creator and creation time.
func (r Repo) UpsertMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO milestones(`+milestoneColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, deadline=excluded.deadline, status=excluded.status,
  progress=excluded.progress, updated_at=excluded.updated_at`,
		m.ID, nullableStringPtr(m.TeamID), m.Title, nullableInt64Ptr(m.Deadline), m.Status, m.Progress,
		m.CreatedBy, m.CreatedByName, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	return r.GetMilestoneTx(ctx, nil, id)
}

func (r Repo) GetMilestoneTx(ctx context.Context, tx *sql.Tx, id string) (domain.Milestone, error) {
	return scanMilestone(r.conn(tx).QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id=?`, id))
}

// ListMilestones returns milestones newest first, optionally for one team.
func (r Repo) ListMilestones(ctx context.Context, teamID string) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones`
	var args []any
	if teamID != "" {
		query += ` WHERE team_id=?`
		args = append(args, teamID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at DESC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
