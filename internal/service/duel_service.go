package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
	"github.com/codeclash/codeclash-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DuelConfig 듀얼 세션 설정
type DuelConfig struct {
	TimeLimit       time.Duration // 문제에 제한 시간이 없을 때 사용
	FinalizeRetries int
	RetryInterval   time.Duration
	PersistTimeout  time.Duration
}

func (c DuelConfig) withDefaults() DuelConfig {
	if c.TimeLimit <= 0 {
		c.TimeLimit = 30 * time.Minute
	}
	if c.FinalizeRetries <= 0 {
		c.FinalizeRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	return c
}

// DuelService 듀얼 세션 생성과 세션별 이벤트 처리
type DuelService struct {
	store     *SessionStore
	repo      SessionRepository
	problems  ProblemProvider
	elo       *ELOService
	notifier  Notifier
	publisher OutcomePublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       DuelConfig
	now       func() time.Time
}

func NewDuelService(
	repo SessionRepository,
	problems ProblemProvider,
	notifier Notifier,
	cfg DuelConfig,
	logger *zap.Logger,
) *DuelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuelService{
		store:    NewSessionStore(),
		repo:     repo,
		problems: problems,
		elo:      NewELOService(),
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SetPublisher 결과 발행자 설정 (없으면 발행하지 않음)
func (s *DuelService) SetPublisher(publisher OutcomePublisher) {
	s.publisher = publisher
}

// SetMetrics 메트릭 설정
func (s *DuelService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Store 세션 보관소
func (s *DuelService) Store() *SessionStore {
	return s.store
}

// CreateSession 매칭된 두 대기자로 세션 생성
// 문제 선택과 영속화가 모두 성공해야 세션이 보관소에 추가된다.
func (s *DuelService) CreateSession(ctx context.Context, a, b models.QueueEntry) (*models.Session, error) {
	if a.UserID == b.UserID {
		return nil, ErrSameUser
	}

	problem, err := s.problems.GetRandomProblem(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select problem: %v", ErrPairingPersistence, err)
	}

	timeLimit := problem.TimeLimit
	if timeLimit <= 0 {
		timeLimit = s.cfg.TimeLimit
	}

	record := &models.Session{
		ID: uuid.New().String(),
		Participants: [2]models.Participant{
			{UserID: a.UserID, Rating: a.Rating},
			{UserID: b.UserID, Rating: b.Rating},
		},
		ProblemID: problem.ID,
		Status:    models.SessionStatusPending,
		TimeLimit: timeLimit,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreateSession(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPairingPersistence, err)
	}

	ds := newDuelSession(s, record, problem)
	s.store.Add(ds)
	s.metrics.SetActiveSessions(s.store.Len())

	s.logger.Info("Duel session created",
		zap.String("sessionId", record.ID),
		zap.String("userA", a.UserID),
		zap.String("userB", b.UserID),
		zap.String("problemId", problem.ID))

	return record.Clone(), nil
}

// Authorize 세션 존재와 참가자 여부 확인
func (s *DuelService) Authorize(sessionID, userID string) error {
	_, err := s.lookup(sessionID, userID)
	return err
}

// JoinMatch 참가자 연결을 세션에 바인딩, 교체된 이전 연결 ID 반환
func (s *DuelService) JoinMatch(sessionID, userID, connID string) (string, error) {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return "", err
	}
	return ds.Bind(userID, connID)
}

// RelayCode 코드 변경을 상대에게 전달
func (s *DuelService) RelayCode(sessionID, userID, code, language string) error {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return err
	}
	return ds.Relay(userID, EventOpponentCodeUpdate, CodeUpdatePayload{
		SessionID: sessionID,
		Code:      code,
		Language:  language,
	})
}

// RelayProgress 진행 상황을 상대에게 전달
func (s *DuelService) RelayProgress(sessionID, userID string, progress json.RawMessage) error {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return err
	}
	return ds.Relay(userID, EventOpponentProgress, ProgressPayload{
		SessionID: sessionID,
		Progress:  progress,
	})
}

// SendMessage 채팅 메시지를 상대에게 전달
func (s *DuelService) SendMessage(sessionID, userID, text string) error {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return err
	}
	return ds.Relay(userID, EventNewMessage, ChatPayload{
		SessionID: sessionID,
		From:      userID,
		Text:      text,
		SentAt:    s.now(),
	})
}

// Submit 코드 제출
func (s *DuelService) Submit(ctx context.Context, sessionID, userID, connID, code, language string) (*models.Submission, error) {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return ds.Submit(ctx, userID, connID, code, language)
}

// Run 예제 케이스 실행
func (s *DuelService) Run(ctx context.Context, sessionID, userID, code, language string) (*models.EvaluationResult, error) {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return ds.Run(ctx, userID, code, language)
}

// Concede 기권
func (s *DuelService) Concede(sessionID, userID string) error {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return err
	}
	return ds.Concede(userID)
}

// Leave 종료된 세션 결과 확인, 두 참가자가 모두 확인하면 보관소에서 제거한다
func (s *DuelService) Leave(sessionID, userID string) error {
	ds, err := s.lookup(sessionID, userID)
	if err != nil {
		return err
	}

	evictable, err := ds.Acknowledge(userID)
	if err != nil {
		return err
	}
	if evictable {
		s.evict(sessionID)
	}
	return nil
}

// Disconnect 연결 종료 시 해당 연결의 세션 바인딩 해제
func (s *DuelService) Disconnect(userID, connID string) []string {
	var unbound []string
	for _, ds := range s.store.ForUser(userID) {
		if ds.Unbind(userID, connID) {
			unbound = append(unbound, ds.ID())
		}
	}
	return unbound
}

// Get 세션 스냅샷
func (s *DuelService) Get(sessionID string) (*models.Session, error) {
	ds, ok := s.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ds.Snapshot(), nil
}

// HasOpenSession 종료되지 않은 세션 참가 여부
func (s *DuelService) HasOpenSession(userID string) bool {
	for _, ds := range s.store.ForUser(userID) {
		if !ds.Status().IsTerminal() {
			return true
		}
	}
	return false
}

// Shutdown 남은 세션 타이머 정지
func (s *DuelService) Shutdown() {
	for _, ds := range s.store.List() {
		ds.stopTimer()
	}
}

func (s *DuelService) lookup(sessionID, userID string) (*DuelSession, error) {
	ds, ok := s.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !ds.HasParticipant(userID) {
		return nil, ErrUnauthorized
	}
	return ds, nil
}

func (s *DuelService) evict(sessionID string) {
	if s.store.Remove(sessionID) {
		s.metrics.SetActiveSessions(s.store.Len())
		s.logger.Debug("Session evicted", zap.String("sessionId", sessionID))
	}
}

func (s *DuelService) evaluate(ctx context.Context, kind, code, language string, cases []models.TestCase) (*models.EvaluationResult, error) {
	start := time.Now()
	result, err := s.problems.Evaluate(ctx, code, language, cases)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveEvaluation(kind, outcome, time.Since(start).Seconds())
	return result, err
}

func (s *DuelService) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
}

// finalized 종료된 세션 결과 발행
func (s *DuelService) finalized(session *models.Session, reason string) {
	s.metrics.SessionFinalized(reason)
	if s.publisher == nil {
		return
	}

	eventType := "duel_completed"
	if session.Status == models.SessionStatusCancelled {
		eventType = "duel_cancelled"
	}
	event := distributed.OutcomeEvent{
		Type:         eventType,
		SessionID:    session.ID,
		ProblemID:    session.ProblemID,
		Participants: []string{session.Participants[0].UserID, session.Participants[1].UserID},
		WinnerID:     session.WinnerID,
		ConcededBy:   session.ConcededBy,
		RatingDelta:  session.RatingDelta,
		Reason:       reason,
	}
	if session.EndTime != nil {
		event.Timestamp = *session.EndTime
	}

	publisher := s.publisher
	go func() {
		ctx, cancel := s.persistContext()
		defer cancel()
		if err := publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish duel outcome",
				zap.String("sessionId", event.SessionID),
				zap.Error(err))
		}
	}()
}
