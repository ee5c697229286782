package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
)

// TokenRecord is one row of auth.tokens_cache. The payload is kept opaque;
// internal/tokens knows how to read the discriminator fields out of it.
type TokenRecord struct {
	Token     string
	Payload   json.RawMessage
	ExpiresAt int64
}

type TokenModel struct {
	DB DBTX
}

func (m TokenModel) Insert(ctx context.Context, token string, payload json.RawMessage, expiresAt int64) error {
	query := `
		INSERT INTO auth.tokens_cache (token, payload, expires_at)
		VALUES ($1, $2, $3)`
	_, err := m.DB.ExecContext(ctx, query, token, payload, expiresAt)
	return err
}

func (m TokenModel) Get(ctx context.Context, token string) (*TokenRecord, error) {
	query := `
		SELECT token, payload, expires_at
		FROM auth.tokens_cache
		WHERE token = $1`

	var rec TokenRecord
	err := m.DB.QueryRowContext(ctx, query, token).Scan(&rec.Token, &rec.Payload, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Touch is the renewal CAS: the update only lands if expires_at still holds
// its previously observed value. Returns ErrTokenNotFound when another
// request renewed (or deleted) the row first; the caller re-loads.
func (m TokenModel) Touch(ctx context.Context, token string, prevExpiresAt, newExpiresAt int64) (*TokenRecord, error) {
	query := `
		UPDATE auth.tokens_cache
		SET expires_at = $1
		WHERE token = $2 AND expires_at = $3
		RETURNING token, payload, expires_at`

	var rec TokenRecord
	err := m.DB.QueryRowContext(ctx, query, newExpiresAt, token, prevExpiresAt).
		Scan(&rec.Token, &rec.Payload, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m TokenModel) Delete(ctx context.Context, token string) (bool, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM auth.tokens_cache WHERE token = $1`, token)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeleteForUser removes every token whose payload names the user. The
// payload user_id is stored as a JSON number, so the comparison goes through
// the ->> text extraction.
func (m TokenModel) DeleteForUser(ctx context.Context, userID int) (int64, error) {
	query := `DELETE FROM auth.tokens_cache WHERE payload ->> 'user_id' = $1`
	res, err := m.DB.ExecContext(ctx, query, strconv.Itoa(userID))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindLiveForUser returns the newest non-expired token for the user, so that
// login can reuse it instead of growing the token table.
func (m TokenModel) FindLiveForUser(ctx context.Context, userID int, now int64) (*TokenRecord, error) {
	query := `
		SELECT token, payload, expires_at
		FROM auth.tokens_cache
		WHERE payload ->> 'user_id' = $1 AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1`

	var rec TokenRecord
	err := m.DB.QueryRowContext(ctx, query, strconv.Itoa(userID), now).
		Scan(&rec.Token, &rec.Payload, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m TokenModel) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM auth.tokens_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
