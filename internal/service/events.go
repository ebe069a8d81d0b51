package service

import (
	"encoding/json"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// 서버 → 클라이언트 이벤트
const (
	EventQueued               = "queued"
	EventMatchmakingCancelled = "matchmaking_cancelled"
	EventMatchFound           = "match_found"
	EventMatchStarted         = "match_started"
	EventOpponentCodeUpdate   = "opponent_code_update"
	EventOpponentProgress     = "opponent_progress"
	EventNewMessage           = "new_message"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentSubmitted    = "opponent_submitted"
	EventSubmissionResult     = "submission_result"
	EventRunResult            = "run_result"
	EventMatchCompleted       = "match_completed"
	EventOpponentConceded     = "opponent_conceded"
	EventMatchCancelled       = "match_cancelled"
	EventMatchmakingError     = "matchmaking_error"
	EventError                = "error"
)

type QueuedPayload struct {
	Position int `json:"position"`
	Rating   int `json:"rating"`
}

type MatchFoundPayload struct {
	SessionID string             `json:"sessionId"`
	Opponent  models.Participant `json:"opponent"`
}

type MatchStartedPayload struct {
	SessionID    string                `json:"sessionId"`
	Problem      models.ProblemView    `json:"problem"`
	Participants [2]models.Participant `json:"participants"`
	StartTime    time.Time             `json:"startTime"`
}

type CodeUpdatePayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

type ProgressPayload struct {
	SessionID string          `json:"sessionId"`
	Progress  json.RawMessage `json:"progress"`
}

type ChatPayload struct {
	SessionID string    `json:"sessionId"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sentAt"`
}

type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

type OpponentSubmittedPayload struct {
	SessionID string `json:"sessionId"`
	Correct   bool   `json:"correct"`
}

type SubmissionResultPayload struct {
	SessionID   string `json:"sessionId"`
	Correct     bool   `json:"correct"`
	PassedCases int    `json:"passedCases"`
	TotalCases  int    `json:"totalCases"`
}

type RunResultPayload struct {
	SessionID string                  `json:"sessionId"`
	Passed    bool                    `json:"passed"`
	Results   []models.TestCaseResult `json:"results"`
}

type MatchCompletedPayload struct {
	SessionID   string         `json:"sessionId"`
	Winner      *string        `json:"winner"`
	ConcededBy  *string        `json:"concededBy,omitempty"`
	RatingDelta map[string]int `json:"ratingDelta"`
	Reason      string         `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type MatchCancelledPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}
