package models

import (
	"errors"
	"time"
)

// ErrSessionClosed 영속 레코드가 이미 종료 상태여서 반영하지 않았다
var ErrSessionClosed = errors.New("session record already closed")

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal 종료 상태 여부
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// CanTransitionTo 상태는 pending → active → {completed|cancelled} 방향으로만 이동한다
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPending:
		return next == SessionStatusActive || next == SessionStatusCompleted || next == SessionStatusCancelled
	case SessionStatusActive:
		return next == SessionStatusCompleted || next == SessionStatusCancelled
	default:
		return false
	}
}

// Outcome 한 참가자 관점의 경기 결과
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Opposite 상대 관점 결과
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	default:
		return OutcomeDraw
	}
}

// Participant 참가자와 매칭 시점 레이팅 스냅샷
type Participant struct {
	UserID string `json:"userId" db:"user_id"`
	Rating int    `json:"rating" db:"rating"`
}

// Session 1:1 듀얼 세션
type Session struct {
	ID           string         `json:"id" db:"id"`
	Participants [2]Participant `json:"participants"`
	ProblemID    string         `json:"problemId" db:"problem_id"`
	Status       SessionStatus  `json:"status" db:"status"`
	TimeLimit    time.Duration  `json:"-" db:"time_limit_seconds"`
	StartTime    *time.Time     `json:"startTime,omitempty" db:"start_time"`
	EndTime      *time.Time     `json:"endTime,omitempty" db:"end_time"`
	Submissions  []Submission   `json:"submissions"`
	WinnerID     *string        `json:"winnerId,omitempty" db:"winner_id"`
	ConcededBy   *string        `json:"concededBy,omitempty" db:"conceded_by"`
	RatingDelta  map[string]int `json:"ratingDelta,omitempty"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}

// HasParticipant 참가자 여부
func (s *Session) HasParticipant(userID string) bool {
	return s.Participants[0].UserID == userID || s.Participants[1].UserID == userID
}

// Opponent 상대 참가자 ID
func (s *Session) Opponent(userID string) string {
	if s.Participants[0].UserID == userID {
		return s.Participants[1].UserID
	}
	return s.Participants[0].UserID
}

// Participant 참가자 조회
func (s *Session) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone 외부 노출용 복사본
func (s *Session) Clone() *Session {
	out := *s
	out.Submissions = append([]Submission(nil), s.Submissions...)
	if s.RatingDelta != nil {
		out.RatingDelta = make(map[string]int, len(s.RatingDelta))
		for k, v := range s.RatingDelta {
			out.RatingDelta[k] = v
		}
	}
	return &out
}

// SessionPatch 상태 전이 시 영속 계층에 반영할 변경분 (nil 필드는 변경 없음)
type SessionPatch struct {
	Status      *SessionStatus
	StartTime   *time.Time
	EndTime     *time.Time
	WinnerID    *string
	ConcededBy  *string
	RatingDelta map[string]int
}
