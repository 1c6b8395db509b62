package repo

import (
	"context"
	"database/sql"

	"teamdesk/internal/domain"
)

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	q := r.conn(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO teams(id,name,created_by,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.CreatedBy, t.CreatedAt); err != nil {
		return err
	}
	for _, uid := range t.Members {
		if err := r.AddTeamMember(ctx, tx, t.ID, uid, t.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) AddTeamMember(ctx context.Context, tx *sql.Tx, teamID, uid string, at int64) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO team_members(team_id,user_id,added_at) VALUES (?,?,?)`, teamID, uid, at)
	return err
}

func (r Repo) RemoveTeamMember(ctx context.Context, tx *sql.Tx, teamID, uid string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM team_members WHERE team_id=? AND user_id=?`, teamID, uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	return r.GetTeamTx(ctx, nil, id)
}

func (r Repo) GetTeamTx(ctx context.Context, tx *sql.Tx, id string) (domain.Team, error) {
	q := r.conn(tx)
	var t domain.Team
	err := q.QueryRowContext(ctx, `SELECT id,name,created_by,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.CreatedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Members, err = r.teamMembers(ctx, q, id)
	return t, err
}

func (r Repo) teamMembers(ctx context.Context, q DBTX, teamID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM team_members WHERE team_id=? ORDER BY added_at ASC, user_id ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []string{}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_by,created_at FROM teams ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedBy, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Members, err = r.teamMembers(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}
