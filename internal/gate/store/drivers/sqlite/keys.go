package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/internal/gate/store"
)

type keysRepo struct {
	db *sql.DB
}

const keyColumns = `email, token_hash, upstream_key_id, upstream_key_secret, revoked, created_at, updated_at`

func (r *keysRepo) GetActiveByEmail(ctx context.Context, email string) (domain.KeyMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE email = ? AND revoked = 0`, email)
	return scanKey(row)
}

func (r *keysRepo) GetActiveByTokenHash(ctx context.Context, tokenHash string) (domain.KeyMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE token_hash = ? AND revoked = 0`, tokenHash)
	return scanKey(row)
}

func (r *keysRepo) GetRevokedByEmail(ctx context.Context, email string) (domain.KeyMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE email = ? AND revoked = 1`, email)
	return scanKey(row)
}

func (r *keysRepo) Insert(ctx context.Context, m domain.KeyMapping) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO keys (email, token_hash, upstream_key_id, upstream_key_secret, revoked)
		 VALUES (?, ?, ?, ?, 0)`,
		m.Email, m.TokenHash, m.UpstreamKeyID, m.UpstreamKeySecret)
	return mapConstraint(err)
}

func (r *keysRepo) UpdateUpstreamRef(ctx context.Context, email, newID, newSecret string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE keys
		 SET upstream_key_id = ?, upstream_key_secret = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE email = ? AND revoked = 0`,
		newID, newSecret, email)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *keysRepo) Reactivate(ctx context.Context, email, newTokenHash, newID, newSecret string) error {
	var (
		res sql.Result
		err error
	)
	if newID != "" {
		res, err = r.db.ExecContext(ctx,
			`UPDATE keys
			 SET revoked = 0, token_hash = ?, upstream_key_id = ?, upstream_key_secret = ?,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE email = ? AND revoked = 1`,
			newTokenHash, newID, newSecret, email)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE keys
			 SET revoked = 0, token_hash = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE email = ? AND revoked = 1`,
			newTokenHash, email)
	}
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (r *keysRepo) Revoke(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE keys
		 SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE email = ? AND revoked = 0`,
		email)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanKey(row *sql.Row) (domain.KeyMapping, error) {
	var m domain.KeyMapping
	err := row.Scan(
		&m.Email, &m.TokenHash, &m.UpstreamKeyID, &m.UpstreamKeySecret,
		&m.Revoked, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.KeyMapping{}, mapNotFound(err)
	}
	return m, nil
}

// requireRow converts a zero-row conditional write into ErrNotFound so the
// service layer sees "someone else got there first" as a normal outcome.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapConstraint translates sqlite uniqueness violations into the store's
// sentinel so the losing side of an insert race gets a Conflict, not a
// driver-specific error string.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}
