package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pushfanout/internal/model"
)

type projectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// GetByID returns a project with its author and assigned freelancer.
func (r *projectRepository) GetByID(ctx context.Context, projectID int64) (*model.Project, error) {
	query := `SELECT id, title, author_id, freelancer_id FROM projects WHERE id = $1`

	var p model.Project
	err := r.db.GetContext(ctx, &p, query, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}
