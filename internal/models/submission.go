package models

import "time"

// Submission 듀얼 중 제출 (추가만 되고 수정되지 않는다)
type Submission struct {
	ParticipantID string    `json:"participantId" db:"participant_id"`
	Code          string    `json:"-" db:"code"`
	Language      string    `json:"language" db:"language"`
	Correct       bool      `json:"correct" db:"correct"`
	PassedCases   int       `json:"passedCases" db:"passed_cases"`
	TotalCases    int       `json:"totalCases" db:"total_cases"`
	SubmittedAt   time.Time `json:"submittedAt" db:"submitted_at"`
}
