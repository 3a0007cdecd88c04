package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChallengeRepository struct {
	*base.Repository
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт challenge
func (r *ChallengeRepository) Create(ctx context.Context, c *model.Challenge) error {
	query := `
		INSERT INTO challenges (name, description, is_active)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query, c.Name, c.Description, c.IsActive).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}

	return nil
}

// GetByID получает challenge по ID
func (r *ChallengeRepository) GetByID(ctx context.Context, id int64) (*model.Challenge, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM challenges
		WHERE id = $1
	`

	var c model.Challenge
	var description *string
	err := r.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&description,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get challenge by id: %w", err)
	}

	if description != nil {
		c.Description = *description
	}

	return &c, nil
}
