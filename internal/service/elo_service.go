package service

import (
	"math"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// DefaultKFactor 레이팅 변동 폭
const DefaultKFactor = 32

// ELOService ELO 레이팅 계산 서비스
type ELOService struct {
	kFactor float64
}

// NewELOService ELO 서비스 생성
func NewELOService() *ELOService {
	return &ELOService{kFactor: DefaultKFactor}
}

// Rate 매칭 시점 레이팅과 A 관점 결과로 양측 변동량 계산
// 각 변동량은 독립적으로 반올림되므로 합이 0이 아닐 수 있다.
func (s *ELOService) Rate(ratingA, ratingB int, outcomeA models.Outcome) (deltaA, deltaB int) {
	scoreA := score(outcomeA)
	scoreB := score(outcomeA.Opposite())

	// 기대 승률 계산
	expectedA := s.expectedScore(float64(ratingA), float64(ratingB))
	expectedB := s.expectedScore(float64(ratingB), float64(ratingA))

	deltaA = int(math.Round(s.kFactor * (scoreA - expectedA)))
	deltaB = int(math.Round(s.kFactor * (scoreB - expectedB)))
	return deltaA, deltaB
}

// ExpectedScore A의 기대 승률
func (s *ELOService) ExpectedScore(ratingA, ratingB int) float64 {
	return s.expectedScore(float64(ratingA), float64(ratingB))
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

func score(o models.Outcome) float64 {
	switch o {
	case models.OutcomeWin:
		return 1.0
	case models.OutcomeLoss:
		return 0.0
	default:
		return 0.5
	}
}
