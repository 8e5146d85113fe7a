package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo stores refresh tokens by SHA-256 hash. The raw value never
// reaches the database.
type TokenRepo struct {
	store *Store
	now   func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{store: NewStore(db), now: func() time.Time { return time.Now().UTC() }}
}

func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.store.Conn().ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)",
		userID, tokenHash, exp.UTC())
	return mapWriteErr(err)
}

// Consume revokes a live token and returns its owner. The row is locked
// while it is checked, so a token can be spent only once even when two
// refreshes race.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.store.WithTx(ctx, func(q DBTX) error {
		var (
			expiresAt time.Time
			revokedAt sql.NullTime
		)
		err := q.QueryRowContext(ctx,
			"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ? FOR UPDATE",
			tokenHash).Scan(&userID, &expiresAt, &revokedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenInvalid
		}
		if err != nil {
			return err
		}
		now := r.now()
		if revokedAt.Valid || !now.Before(expiresAt) {
			return ErrTokenInvalid
		}
		_, err = q.ExecContext(ctx, "UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ?", now, tokenHash)
		return err
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RevokeAllForUser ends every session of a user: logout everywhere and
// password resets.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.store.Conn().ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL",
		r.now(), userID)
	return err
}

// PurgeStale deletes tokens that expired, or were revoked, before cutoff.
func (r *TokenRepo) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.store.Conn().ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)",
		cutoff, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
