package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pushfanout/internal/model"
)

type deviceTokenRepository struct {
	db *sqlx.DB
}

func NewDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// Upsert creates or updates a device token.
// The token column is unique, so a token that changed hands is reassigned
// to the new owner instead of being duplicated.
func (r *deviceTokenRepository) Upsert(ctx context.Context, userID, token string, deviceType model.DeviceType, deviceInfo string) (*model.DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (id, user_id, token, device_type, device_info, is_active, last_used)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_type = EXCLUDED.device_type,
			device_info = EXCLUDED.device_info,
			is_active = TRUE,
			last_used = NOW()
		RETURNING id, user_id, token, device_type, device_info, is_active, last_used, created_at
	`
	var t model.DeviceToken
	err := r.db.GetContext(ctx, &t, query, uuid.NewString(), userID, token, deviceType, deviceInfo)
	if err != nil {
		return nil, wrapUserQueryError("upsert device token", err)
	}
	return &t, nil
}

// ListActive returns the active device tokens of a user.
func (r *deviceTokenRepository) ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, device_type, device_info, is_active, last_used, created_at
		FROM device_tokens
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY last_used DESC
	`
	var tokens []model.DeviceToken
	err := r.db.SelectContext(ctx, &tokens, query, userID)
	if err != nil {
		return nil, wrapUserQueryError("list active device tokens", err)
	}
	return tokens, nil
}

// Deactivate marks the given tokens inactive.
// Unknown or already inactive ids are skipped by the WHERE clause.
func (r *deviceTokenRepository) Deactivate(ctx context.Context, ids []string) (int64, error) {
	query := `UPDATE device_tokens SET is_active = FALSE WHERE id = ANY($1) AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("deactivate device tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate device tokens: %w", err)
	}
	return n, nil
}

// DeactivateAll marks every token of a user inactive (logout everywhere).
func (r *deviceTokenRepository) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE device_tokens SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, wrapUserQueryError("deactivate user device tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate user device tokens: %w", err)
	}
	return n, nil
}

// Delete removes a device token owned by userID.
func (r *deviceTokenRepository) Delete(ctx context.Context, userID, token string) (bool, error) {
	query := `DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`
	res, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return false, wrapUserQueryError("delete device token", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete device token: %w", err)
	}
	return n > 0, nil
}
