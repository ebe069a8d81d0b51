package models

import "time"

// QueueEntry 매칭 대기 중인 사용자
type QueueEntry struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"-"`
	Rating       int       `json:"rating"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// MatchmakingHistory 매칭 기록
type MatchmakingHistory struct {
	ID               string    `db:"id" json:"id"`
	UserAID          string    `db:"user_a_id" json:"userAId"`
	UserBID          string    `db:"user_b_id" json:"userBId"`
	SessionID        string    `db:"session_id" json:"sessionId"`
	RatingDifference int       `db:"rating_difference" json:"ratingDifference"`
	WaitedMs         int64     `db:"waited_ms" json:"waitedMs"`
	MatchedAt        time.Time `db:"matched_at" json:"matchedAt"`
}
