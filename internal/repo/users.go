package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"teamdesk/internal/domain"
)

const userColumns = `uid,email,display_name,role,status,team_id,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var team sql.NullString
	err := row.Scan(&u.UID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &team, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.TeamID = stringPtr(team)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.UID, strings.ToLower(u.Email), u.DisplayName, u.Role, u.Status, nullableStringPtr(u.TeamID), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, uid string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, uid)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, uid string) (domain.User, error) {
	return scanUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid=?`, uid))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

// UserFilters selects users by field. Empty fields match everything.
type UserFilters struct {
	Role   domain.Role
	Status domain.UserStatus
	TeamID string
	UIDs   []string
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	return r.ListUsersTx(ctx, nil, f)
}

func (r Repo) ListUsersTx(ctx context.Context, tx *sql.Tx, f UserFilters) ([]domain.User, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.UIDs != nil {
		if len(f.UIDs) == 0 {
			return nil, nil
		}
		clauses = append(clauses, fmt.Sprintf("uid IN (%s)", placeholders(len(f.UIDs))))
		for _, uid := range f.UIDs {
			args = append(args, uid)
		}
	}
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at ASC, uid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUserRole(ctx context.Context, tx *sql.Tx, uid string, role domain.Role) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET role=? WHERE uid=?`, role, uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) UpdateUserStatus(ctx context.Context, tx *sql.Tx, uid string, status domain.UserStatus) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET status=? WHERE uid=?`, status, uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) UpdateUserTeam(ctx context.Context, tx *sql.Tx, uid string, teamID *string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET team_id=? WHERE uid=?`, nullableStringPtr(teamID), uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) UpdateUserDisplayName(ctx context.Context, tx *sql.Tx, uid, name string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET display_name=? WHERE uid=?`, name, uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
