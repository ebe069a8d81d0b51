package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/metrics"
	"go.uber.org/zap"
)

// SessionCreator 매칭 결과로 세션을 만드는 쪽
type SessionCreator interface {
	CreateSession(ctx context.Context, a, b models.QueueEntry) (*models.Session, error)
	HasOpenSession(userID string) bool
}

type MatchmakingService struct {
	queue    *MatchmakingQueue
	ratings  RatingReader
	sessions SessionCreator
	history  PairingRecorder
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	ratings RatingReader,
	sessions SessionCreator,
	history PairingRecorder,
	notifier Notifier,
	interval time.Duration,
	logger *zap.Logger,
) *MatchmakingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchmakingService{
		queue:    NewMatchmakingQueue(),
		ratings:  ratings,
		sessions: sessions,
		history:  history,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// SetMetrics 메트릭 설정
func (s *MatchmakingService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Queue 매칭 대기열
func (s *MatchmakingService) Queue() *MatchmakingQueue {
	return s.queue
}

// Start 주기적 매칭 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.matchmakingLoop()
}

// Stop 주기적 매칭 중지
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// matchmakingLoop 주기적 매칭 실행
// 입장 시점에 매칭되지 않은 대기자(실패 후 복원된 대기자 포함)를 다시 시도한다.
func (s *MatchmakingService) matchmakingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunPairingPass(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Join 매칭 대기열 입장
func (s *MatchmakingService) Join(ctx context.Context, userID, connID string) error {
	if s.sessions.HasOpenSession(userID) {
		return ErrAlreadyInSession
	}
	if s.queue.Contains(userID) {
		return ErrAlreadyQueued
	}

	rating, err := s.ratings.GetRating(ctx, userID)
	if err != nil {
		return err
	}

	// 레이팅 조회 중에 다른 연결에서 매칭됐을 수 있어 잠금 아래에서 다시 확인한다
	entry, position, err := s.queue.EnqueueIf(userID, connID, rating, s.admit)
	if err != nil {
		return err
	}
	s.metrics.SetQueueSize(s.queue.Len())

	s.logger.Debug("User queued",
		zap.String("userId", userID),
		zap.Int("rating", entry.Rating),
		zap.Int("position", position))
	s.notifier.Send(connID, EventQueued, QueuedPayload{Position: position, Rating: entry.Rating})

	s.tryPair(ctx, userID)
	return nil
}

// Cancel 매칭 취소 (대기 중이 아니면 false)
func (s *MatchmakingService) Cancel(userID string) bool {
	entry, ok := s.queue.Cancel(userID)
	if !ok {
		return false
	}
	s.metrics.SetQueueSize(s.queue.Len())
	s.notifier.Send(entry.ConnectionID, EventMatchmakingCancelled, struct{}{})
	return true
}

// Disconnect 연결 종료 시 그 연결로 들어온 대기자 제거
func (s *MatchmakingService) Disconnect(userID, connID string) bool {
	if !s.queue.CancelConnection(userID, connID) {
		return false
	}
	s.metrics.SetQueueSize(s.queue.Len())
	s.logger.Debug("Queue entry dropped on disconnect", zap.String("userId", userID))
	return true
}

// RunPairingPass 대기열 전체에 대해 먼저 들어온 순서로 매칭 시도
func (s *MatchmakingService) RunPairingPass(ctx context.Context) int {
	waiting := s.queue.waiting()
	if len(waiting) < 2 {
		return 0
	}

	matched := 0
	for _, userID := range waiting {
		if s.tryPair(ctx, userID) {
			matched++
		}
	}

	if matched > 0 {
		s.logger.Info("Matchmaking pass completed",
			zap.Int("waiting", len(waiting)),
			zap.Int("matches_created", matched))
	}
	return matched
}

// tryPair userID에 대한 매칭 시도, 세션이 만들어지면 true
func (s *MatchmakingService) tryPair(ctx context.Context, userID string) bool {
	var session *models.Session
	a, b, err := s.queue.TryPair(ctx, userID, func(ctx context.Context, a, b models.QueueEntry) error {
		if stale := s.staleEntries(a, b); stale != nil {
			return stale
		}
		created, err := s.sessions.CreateSession(ctx, a, b)
		if err != nil {
			return err
		}
		session = created
		return nil
	})
	if a == nil || b == nil {
		return false
	}
	s.metrics.SetQueueSize(s.queue.Len())

	var stale *StaleEntryError
	if errors.As(err, &stale) {
		for _, e := range []*models.QueueEntry{a, b} {
			if stale.has(e.UserID) {
				s.logger.Warn("Dropped queue entry of user already in a session", zap.String("userId", e.UserID))
				s.notifier.Send(e.ConnectionID, EventMatchmakingError, ErrorPayload{
					Message: ErrAlreadyInSession.Error(),
					Code:    "already_in_session",
				})
			}
		}
		// 남은 대기자로 다시 시도 (시도마다 대기자가 하나 이상 줄어든다)
		if s.queue.Contains(userID) {
			return s.tryPair(ctx, userID)
		}
		return false
	}

	if err != nil {
		s.metrics.PairingFailed()
		s.logger.Error("Failed to create session for pairing",
			zap.String("userA", a.UserID),
			zap.String("userB", b.UserID),
			zap.Error(err))

		payload := ErrorPayload{Message: "failed to create match, still queued", Code: "pairing_failed"}
		s.notifier.Send(a.ConnectionID, EventMatchmakingError, payload)
		s.notifier.Send(b.ConnectionID, EventMatchmakingError, payload)
		return false
	}
	s.metrics.PairingSucceeded()

	s.notifier.Send(a.ConnectionID, EventMatchFound, MatchFoundPayload{
		SessionID: session.ID,
		Opponent:  models.Participant{UserID: b.UserID, Rating: b.Rating},
	})
	s.notifier.Send(b.ConnectionID, EventMatchFound, MatchFoundPayload{
		SessionID: session.ID,
		Opponent:  models.Participant{UserID: a.UserID, Rating: a.Rating},
	})

	s.recordPairing(ctx, *a, *b, session)
	return true
}

// admit 열린 세션이 있는 사용자는 대기열에 들어올 수 없다
func (s *MatchmakingService) admit(userID string) error {
	if s.sessions.HasOpenSession(userID) {
		return ErrAlreadyInSession
	}
	return nil
}

// staleEntries 이미 열린 세션에 참가 중인 대기자
func (s *MatchmakingService) staleEntries(entries ...models.QueueEntry) error {
	var ids []string
	for _, e := range entries {
		if s.sessions.HasOpenSession(e.UserID) {
			ids = append(ids, e.UserID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &StaleEntryError{UserIDs: ids}
}

func (s *MatchmakingService) recordPairing(ctx context.Context, a, b models.QueueEntry, session *models.Session) {
	if s.history == nil {
		return
	}

	// 먼저 들어온 쪽의 대기 시간
	waited := session.CreatedAt.Sub(a.JoinedAt)
	if b.JoinedAt.Before(a.JoinedAt) {
		waited = session.CreatedAt.Sub(b.JoinedAt)
	}

	h := models.MatchmakingHistory{
		UserAID:          a.UserID,
		UserBID:          b.UserID,
		SessionID:        session.ID,
		RatingDifference: abs(a.Rating - b.Rating),
		WaitedMs:         waited.Milliseconds(),
		MatchedAt:        session.CreatedAt,
	}
	if err := s.history.RecordPairing(ctx, h); err != nil {
		s.logger.Error("Failed to record pairing", zap.String("sessionId", session.ID), zap.Error(err))
	}
}
