package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"pushfanout/internal/model"
)

// userRepository reads the push profile from the account service's users table
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// GetRecipient retrieves the opt-in flag and name of a user
func (r *userRepository) GetRecipient(ctx context.Context, userID string) (*model.Recipient, error) {
	query := `
		SELECT id, first_name, last_name, push_notifications_enabled
		FROM users
		WHERE id = $1
	`

	var u model.Recipient
	err := r.db.GetContext(ctx, &u, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, wrapUserQueryError("failed to get user by id", err)
	}

	return &u, nil
}
