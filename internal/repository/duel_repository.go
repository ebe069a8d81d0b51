package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
	"github.com/lib/pq"
)

type DuelRepository struct {
	db *database.DB
}

func NewDuelRepository(db *database.DB) *DuelRepository {
	return &DuelRepository{db: db}
}

// CreateSession 새 듀얼 세션 저장
func (r *DuelRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO duels (
			id, user_a_id, user_a_rating, user_b_id, user_b_rating,
			problem_id, status, time_limit_seconds, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	a, b := session.Participants[0], session.Participants[1]
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		a.UserID, a.Rating,
		b.UserID, b.Rating,
		session.ProblemID,
		string(session.Status),
		int(session.TimeLimit.Seconds()),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create duel: %w", err)
	}
	return nil
}

// UpdateSession 상태 전이 반영
// 이미 종료된(또는 없는) 레코드는 바꾸지 않고 models.ErrSessionClosed를 반환한다.
func (r *DuelRepository) UpdateSession(ctx context.Context, id string, patch models.SessionPatch) error {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.StartTime != nil {
		set("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		set("end_time", *patch.EndTime)
	}
	if patch.WinnerID != nil {
		set("winner_id", *patch.WinnerID)
	}
	if patch.ConcededBy != nil {
		set("conceded_by", *patch.ConcededBy)
	}
	if patch.RatingDelta != nil {
		data, err := json.Marshal(patch.RatingDelta)
		if err != nil {
			return fmt.Errorf("failed to marshal rating delta: %w", err)
		}
		set("rating_delta", data)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE duels
		SET %s, updated_at = NOW()
		WHERE id = $%d AND status NOT IN ('completed', 'cancelled')
	`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update duel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("duel %s: %w", id, models.ErrSessionClosed)
	}
	return nil
}

// AddSubmission 제출 기록 추가
func (r *DuelRepository) AddSubmission(ctx context.Context, sessionID string, sub models.Submission) error {
	query := `
		INSERT INTO duel_submissions (
			duel_id, participant_id, code, language, correct,
			passed_cases, total_cases, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		sub.ParticipantID,
		sub.Code,
		sub.Language,
		sub.Correct,
		sub.PassedCases,
		sub.TotalCases,
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add submission: %w", err)
	}
	return nil
}

// ApplyRatingDelta 레이팅 변동 반영 (세션/사용자당 한 번)
// rating_history 기본키로 중복 적용을 막는다. 트로피는 건드리지 않는다.
// 경기 레코드가 completed가 아니면 models.ErrSessionClosed를 반환한다.
func (r *DuelRepository) ApplyRatingDelta(ctx context.Context, sessionID, userID string, delta int, outcome models.Outcome) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 다른 인스턴스의 정리 작업이 먼저 취소한 경기에는 반영하지 않는다
	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM duels WHERE id = $1 FOR SHARE`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("duel %s not found", sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock duel: %w", err)
	}
	if models.SessionStatus(status) != models.SessionStatusCompleted {
		return fmt.Errorf("duel %s is %s: %w", sessionID, status, models.ErrSessionClosed)
	}

	var before int
	err = tx.QueryRowContext(ctx, `SELECT rating FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&before)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO rating_history (duel_id, user_id, delta, outcome, rating_before, rating_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (duel_id, user_id) DO NOTHING
	`, sessionID, userID, delta, string(outcome), before, before+delta)
	if err != nil {
		return fmt.Errorf("failed to record rating history: %w", err)
	}

	// 이미 반영됨
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	var wins, losses, draws int
	switch outcome {
	case models.OutcomeWin:
		wins = 1
	case models.OutcomeLoss:
		losses = 1
	default:
		draws = 1
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET rating = rating + $1,
		    wins = wins + $2,
		    losses = losses + $3,
		    draws = draws + $4,
		    duels_played = duels_played + 1,
		    updated_at = NOW()
		WHERE id = $5
	`, delta, wins, losses, draws, userID)
	if err != nil {
		return fmt.Errorf("failed to update user rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID 세션 조회 (제출 포함)
func (r *DuelRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, user_a_id, user_a_rating, user_b_id, user_b_rating, problem_id,
		       status, time_limit_seconds, start_time, end_time, winner_id,
		       conceded_by, rating_delta, created_at
		FROM duels
		WHERE id = $1
	`

	session := &models.Session{}
	var (
		timeLimit int
		delta     []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Participants[0].UserID,
		&session.Participants[0].Rating,
		&session.Participants[1].UserID,
		&session.Participants[1].Rating,
		&session.ProblemID,
		&session.Status,
		&timeLimit,
		&session.StartTime,
		&session.EndTime,
		&session.WinnerID,
		&session.ConcededBy,
		&delta,
		&session.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find duel: %w", err)
	}

	session.TimeLimit = time.Duration(timeLimit) * time.Second
	if len(delta) > 0 {
		if err := json.Unmarshal(delta, &session.RatingDelta); err != nil {
			return nil, fmt.Errorf("failed to decode rating delta: %w", err)
		}
	}

	subs, err := r.findSubmissions(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Submissions = subs

	return session, nil
}

func (r *DuelRepository) findSubmissions(ctx context.Context, sessionID string) ([]models.Submission, error) {
	query := `
		SELECT participant_id, language, correct, passed_cases, total_cases, submitted_at
		FROM duel_submissions
		WHERE duel_id = $1
		ORDER BY submitted_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var sub models.Submission
		if err := rows.Scan(
			&sub.ParticipantID,
			&sub.Language,
			&sub.Correct,
			&sub.PassedCases,
			&sub.TotalCases,
			&sub.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CancelStaleSessions createdBefore 이전에 만들어진 미종료 세션 취소 (exclude 제외)
func (r *DuelRepository) CancelStaleSessions(ctx context.Context, createdBefore time.Time, exclude []string) (int64, error) {
	if exclude == nil {
		exclude = []string{}
	}

	query := `
		UPDATE duels
		SET status = 'cancelled', end_time = NOW(), updated_at = NOW()
		WHERE status IN ('pending', 'active')
		  AND created_at < $1
		  AND NOT (id::text = ANY($2))
	`
	res, err := r.db.ExecContext(ctx, query, createdBefore, pq.Array(exclude))
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stale duels: %w", err)
	}
	return res.RowsAffected()
}
