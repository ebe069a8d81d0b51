package service

import (
	"context"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
)

// SessionRepository 세션/레이팅 영속 계층 (Persistence Gateway)
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, id string, patch models.SessionPatch) error
	AddSubmission(ctx context.Context, sessionID string, sub models.Submission) error
	// ApplyRatingDelta는 (sessionID, userID) 쌍마다 한 번만 반영되어야 한다
	ApplyRatingDelta(ctx context.Context, sessionID, userID string, delta int, outcome models.Outcome) error
}

// RatingReader 사용자 현재 레이팅 조회
type RatingReader interface {
	GetRating(ctx context.Context, userID string) (int, error)
}

// PairingRecorder 매칭 기록 저장
type PairingRecorder interface {
	RecordPairing(ctx context.Context, h models.MatchmakingHistory) error
}

// OrphanReaper 다른 인스턴스가 남긴 미종료 세션 정리
type OrphanReaper interface {
	CancelStaleSessions(ctx context.Context, createdBefore time.Time, exclude []string) (int64, error)
}

// ProblemProvider 문제 조회 및 채점
type ProblemProvider interface {
	GetRandomProblem(ctx context.Context) (*models.Problem, error)
	GetProblemByID(ctx context.Context, id string) (*models.Problem, error)
	Evaluate(ctx context.Context, code, language string, testCases []models.TestCase) (*models.EvaluationResult, error)
}

// IdentityProvider 자격 증명 검증 (외부 인증 서비스 발급 토큰)
type IdentityProvider interface {
	Resolve(credential string) (string, error)
}

// Notifier 실시간 연결로 이벤트 전달
type Notifier interface {
	// Send 단일 연결로 전송
	Send(connID, event string, payload interface{})
	// Publish 룸 멤버 전체에 전송 (exceptConnID 제외)
	Publish(room, event string, payload interface{}, exceptConnID string)
}

// OutcomePublisher 종료 결과 발행 (표시 계층용)
type OutcomePublisher interface {
	Publish(ctx context.Context, event distributed.OutcomeEvent) error
}

// Locker 인스턴스 간 상호 배제
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}
