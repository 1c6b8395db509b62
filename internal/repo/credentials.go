package repo

import (
	"context"
	"database/sql"
	"strings"
)

type Credential struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

func (r Repo) InsertCredential(ctx context.Context, c Credential) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO credentials(uid,email,password_hash,created_at) VALUES (?,?,?,?)`,
		c.UID, strings.ToLower(c.Email), c.PasswordHash, c.CreatedAt)
	return err
}

func (r Repo) GetCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := r.DB.QueryRowContext(ctx, `SELECT uid,email,password_hash,created_at FROM credentials WHERE email=?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&c.UID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) UpdatePasswordHash(ctx context.Context, uid, hash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE credentials SET password_hash=? WHERE uid=?`, hash, uid)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) RevokeToken(ctx context.Context, jti string, expiresAt int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO revoked_tokens(jti,expires_at) VALUES (?,?)`, jti, expiresAt)
	return err
}

func (r Repo) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE jti=?`, jti).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PruneRevokedTokens drops revocations whose token has expired anyway.
func (r Repo) PruneRevokedTokens(ctx context.Context, now int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at<=?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
