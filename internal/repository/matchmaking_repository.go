package repository

import (
	"context"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type MatchmakingRepository struct {
	db *database.DB
}

func NewMatchmakingRepository(db *database.DB) *MatchmakingRepository {
	return &MatchmakingRepository{db: db}
}

// RecordPairing 매칭 기록 저장
func (r *MatchmakingRepository) RecordPairing(ctx context.Context, h models.MatchmakingHistory) error {
	query := `
		INSERT INTO matchmaking_history (user_a_id, user_b_id, session_id, rating_difference, waited_ms, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.UserAID,
		h.UserBID,
		h.SessionID,
		h.RatingDifference,
		h.WaitedMs,
		h.MatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record pairing: %w", err)
	}
	return nil
}

// RecentForUser 사용자의 최근 매칭 기록
func (r *MatchmakingRepository) RecentForUser(ctx context.Context, userID string, limit int) ([]models.MatchmakingHistory, error) {
	query := `
		SELECT id, user_a_id, user_b_id, session_id, rating_difference, waited_ms, matched_at
		FROM matchmaking_history
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY matched_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get matchmaking history: %w", err)
	}
	defer rows.Close()

	var history []models.MatchmakingHistory
	for rows.Next() {
		var h models.MatchmakingHistory
		if err := rows.Scan(
			&h.ID,
			&h.UserAID,
			&h.UserBID,
			&h.SessionID,
			&h.RatingDifference,
			&h.WaitedMs,
			&h.MatchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan matchmaking history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
