package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure 외부 인증 서비스의 사용자를 기본 레이팅으로 등록 (이미 있으면 그대로)
func (r *UserRepository) Ensure(ctx context.Context, userID string) error {
	query := `
		INSERT INTO users (id, rating)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, models.DefaultRating); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// GetRating 현재 레이팅 (처음 보는 사용자는 기본 레이팅으로 등록)
func (r *UserRepository) GetRating(ctx context.Context, userID string) (int, error) {
	if err := r.Ensure(ctx, userID); err != nil {
		return 0, err
	}

	var rating int
	err := r.db.QueryRowContext(ctx, `SELECT rating FROM users WHERE id = $1`, userID).Scan(&rating)
	if err != nil {
		return 0, fmt.Errorf("failed to get rating: %w", err)
	}
	return rating, nil
}

// FindByID ID로 사용자 찾기
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, rating, trophies, wins, losses, draws, duels_played, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Rating,
		&user.Trophies,
		&user.Wins,
		&user.Losses,
		&user.Draws,
		&user.DuelsPlayed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}
