package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
)

// AccessCacheRecord is one row of auth.permissions_cache: the materialized
// access view for one (token, service) pair.
type AccessCacheRecord struct {
	AccessJSON json.RawMessage
	ExpiresAt  int64
}

type AccessCacheModel struct {
	DB DBTX
}

func (m AccessCacheModel) Load(ctx context.Context, token string, serviceID int) (*AccessCacheRecord, error) {
	query := `
		SELECT permissions, expires_at
		FROM auth.permissions_cache
		WHERE token = $1 AND service_id = $2`

	var rec AccessCacheRecord
	err := m.DB.QueryRowContext(ctx, query, token, serviceID).Scan(&rec.AccessJSON, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Store upserts on (token, service_id); last writer wins.
func (m AccessCacheModel) Store(ctx context.Context, token string, serviceID int, accessJSON json.RawMessage, expiresAt int64) error {
	query := `
		INSERT INTO auth.permissions_cache (token, service_id, permissions, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token, service_id)
		DO UPDATE SET permissions = EXCLUDED.permissions,
			expires_at = EXCLUDED.expires_at`
	_, err := m.DB.ExecContext(ctx, query, token, serviceID, accessJSON, expiresAt)
	return err
}

// InvalidateForUserInService drops the cache rows behind every token the
// user currently holds, scoped to one service.
func (m AccessCacheModel) InvalidateForUserInService(ctx context.Context, userID, serviceID int) (int64, error) {
	query := `
		DELETE FROM auth.permissions_cache
		WHERE token IN (
			SELECT token FROM auth.tokens_cache WHERE payload ->> 'user_id' = $1
		) AND service_id = $2`
	res, err := m.DB.ExecContext(ctx, query, strconv.Itoa(userID), serviceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m AccessCacheModel) InvalidateForUser(ctx context.Context, userID int) (int64, error) {
	query := `
		DELETE FROM auth.permissions_cache
		WHERE token IN (
			SELECT token FROM auth.tokens_cache WHERE payload ->> 'user_id' = $1
		)`
	res, err := m.DB.ExecContext(ctx, query, strconv.Itoa(userID))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m AccessCacheModel) InvalidateForService(ctx context.Context, serviceID int) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM auth.permissions_cache WHERE service_id = $1`, serviceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clear empties the whole cache. Used when a mutation's blast radius cannot
// be narrowed (role delete can span services).
func (m AccessCacheModel) Clear(ctx context.Context) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM auth.permissions_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m AccessCacheModel) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM auth.permissions_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
