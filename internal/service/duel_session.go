package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"go.uber.org/zap"
)

// 종료 사유
const (
	ReasonCorrectSubmission = "correct_submission"
	ReasonConcede           = "concede"
	ReasonTimeout           = "timeout"
	ReasonInactivity        = "inactivity"
	ReasonAbandoned         = "abandoned"
)

type ratingWrite struct {
	userID  string
	delta   int
	outcome models.Outcome
}

// sweepResult 정리 주기 한 번의 세션별 처리 결과
type sweepResult struct {
	evict  bool
	reaped string // "", "cancelled", "drawn"
}

// DuelSession 세션 하나의 상태 머신
//
// mu는 세션 상태 전체를 보호한다. submitMu는 제출을 도착 순서대로 직렬화하며,
// 채점은 mu 밖에서 실행되어 중계/기권 이벤트를 막지 않는다.
// persistMu는 종료 결과 저장을 직렬화한다. 저장과 재시도 대기는 mu 밖에서 일어나며,
// 잠금 순서는 persistMu → mu 이다.
type DuelSession struct {
	mu        sync.Mutex
	submitMu  sync.Mutex
	persistMu sync.Mutex

	svc     *DuelService
	record  *models.Session
	problem *models.Problem

	bindings     map[string]string // userID -> connID
	acked        map[string]bool
	bestPassed   map[string]int
	transitions  []models.SessionStatus
	lastActivity time.Time
	timer        *time.Timer
	reason       string

	// 아직 영속 계층에 반영되지 않은 종료 결과
	pendingPatch   *models.SessionPatch
	pendingRatings []ratingWrite
}

func newDuelSession(svc *DuelService, record *models.Session, problem *models.Problem) *DuelSession {
	return &DuelSession{
		svc:          svc,
		record:       record,
		problem:      problem,
		bindings:     make(map[string]string, 2),
		acked:        make(map[string]bool, 2),
		bestPassed:   make(map[string]int, 2),
		transitions:  []models.SessionStatus{record.Status},
		lastActivity: svc.now(),
	}
}

// ID, 참가자, 문제는 생성 후 바뀌지 않으므로 잠금 없이 읽는다.
func (ds *DuelSession) ID() string { return ds.record.ID }

func (ds *DuelSession) HasParticipant(userID string) bool {
	return ds.record.HasParticipant(userID)
}

// Snapshot 현재 세션 상태 복사본
func (ds *DuelSession) Snapshot() *models.Session {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.record.Clone()
}

func (ds *DuelSession) Status() models.SessionStatus {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.record.Status
}

// Transitions 지금까지 거친 상태 목록
func (ds *DuelSession) Transitions() []models.SessionStatus {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]models.SessionStatus(nil), ds.transitions...)
}

// PersistPending 종료 결과가 아직 저장되지 않았는지
func (ds *DuelSession) PersistPending() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.persistPendingLocked()
}

// Bind 참가자 연결 등록, 이전 연결 ID 반환
// 두 참가자가 모두 연결되면 세션이 시작된다.
func (ds *DuelSession) Bind(userID, connID string) (string, error) {
	if !ds.HasParticipant(userID) {
		return "", ErrUnauthorized
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	prev := ds.bindings[userID]
	ds.bindings[userID] = connID
	ds.touch()

	switch ds.record.Status {
	case models.SessionStatusPending:
		if len(ds.bindings) == 2 {
			ds.activateLocked()
		}
	case models.SessionStatusActive:
		// 재접속: 새 연결에만 다시 알린다
		if prev != connID {
			ds.svc.notifier.Send(connID, EventMatchStarted, ds.startedPayloadLocked())
		}
	default:
		ds.sendTerminalLocked(connID)
	}
	return prev, nil
}

// Unbind 연결 해제, connID가 현재 바인딩일 때만 제거한다
func (ds *DuelSession) Unbind(userID, connID string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if cur, ok := ds.bindings[userID]; !ok || cur != connID {
		return false
	}
	delete(ds.bindings, userID)

	if !ds.record.Status.IsTerminal() {
		if other := ds.bindings[ds.record.Opponent(userID)]; other != "" {
			notifier := ds.svc.notifier
			payload := SessionRefPayload{SessionID: ds.record.ID}
			go notifier.Send(other, EventOpponentDisconnected, payload)
		}
	}
	return true
}

// Relay 진행 중인 세션에서 상대 연결로 이벤트 전달
// 상대가 연결되어 있지 않으면 조용히 버린다.
func (ds *DuelSession) Relay(userID, event string, payload interface{}) error {
	if !ds.HasParticipant(userID) {
		return ErrUnauthorized
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.record.Status != models.SessionStatusActive {
		return ErrInvalidState
	}
	ds.touch()

	if conn := ds.bindings[ds.record.Opponent(userID)]; conn != "" {
		ds.svc.notifier.Send(conn, event, payload)
	}
	return nil
}

// Submit 전체 테스트 케이스로 채점하고 결과를 제출 연결로 보낸다.
// 먼저 정답을 제출한 참가자가 승리하며, 채점 중 세션이 종료되면 제출은 기록만 되고 결과에 반영되지 않는다.
func (ds *DuelSession) Submit(ctx context.Context, userID, connID, code, language string) (*models.Submission, error) {
	if !ds.HasParticipant(userID) {
		return nil, ErrUnauthorized
	}

	ds.submitMu.Lock()
	defer ds.submitMu.Unlock()

	ds.mu.Lock()
	if ds.record.Status != models.SessionStatusActive {
		ds.mu.Unlock()
		return nil, ErrInvalidState
	}
	submittedAt := ds.svc.now()
	ds.touch()
	ds.mu.Unlock()

	cases := ds.problem.TestCases
	result, err := ds.svc.evaluate(ctx, "submit", code, language, cases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	passed := result.PassedCount()
	sub := models.Submission{
		ParticipantID: userID,
		Code:          code,
		Language:      language,
		Correct:       result.Passed && len(cases) > 0 && passed == len(cases),
		PassedCases:   passed,
		TotalCases:    len(cases),
		SubmittedAt:   submittedAt,
	}

	ds.mu.Lock()

	// 채점 중 기권/시간 만료로 끝났으면 기록만 남기고 결과는 바꾸지 않는다
	if ds.record.Status != models.SessionStatusActive {
		ds.record.Submissions = append(ds.record.Submissions, sub)
		ds.saveSubmissionLocked(sub)
		ds.mu.Unlock()
		return nil, ErrInvalidState
	}

	ds.record.Submissions = append(ds.record.Submissions, sub)
	if passed > ds.bestPassed[userID] {
		ds.bestPassed[userID] = passed
	}
	ds.touch()
	ds.saveSubmissionLocked(sub)

	ds.svc.notifier.Send(connID, EventSubmissionResult, SubmissionResultPayload{
		SessionID:   ds.record.ID,
		Correct:     sub.Correct,
		PassedCases: sub.PassedCases,
		TotalCases:  sub.TotalCases,
	})
	if conn := ds.bindings[ds.record.Opponent(userID)]; conn != "" {
		ds.svc.notifier.Send(conn, EventOpponentSubmitted, OpponentSubmittedPayload{
			SessionID: ds.record.ID,
			Correct:   sub.Correct,
		})
	}

	closed := false
	if sub.Correct {
		winner := userID
		closed = ds.finalizeLocked(&winner, nil, ReasonCorrectSubmission)
	}
	ds.mu.Unlock()

	if closed {
		ds.flush(ds.svc.cfg.FinalizeRetries)
	}
	return &sub, nil
}

func (ds *DuelSession) saveSubmissionLocked(sub models.Submission) {
	ctx, cancel := ds.svc.persistContext()
	defer cancel()
	if err := ds.svc.repo.AddSubmission(ctx, ds.record.ID, sub); err != nil {
		ds.svc.logger.Warn("Failed to persist submission",
			zap.String("sessionId", ds.record.ID),
			zap.String("userId", sub.ParticipantID),
			zap.Error(err))
	}
}

// Run 공개 예제 케이스로만 채점 (세션 상태는 바뀌지 않는다)
func (ds *DuelSession) Run(ctx context.Context, userID, code, language string) (*models.EvaluationResult, error) {
	if !ds.HasParticipant(userID) {
		return nil, ErrUnauthorized
	}

	ds.mu.Lock()
	if ds.record.Status != models.SessionStatusActive {
		ds.mu.Unlock()
		return nil, ErrInvalidState
	}
	ds.touch()
	ds.mu.Unlock()

	cases := ds.problem.SampleCases()
	if len(cases) == 0 {
		return &models.EvaluationResult{}, nil
	}

	result, err := ds.svc.evaluate(ctx, "run", code, language, cases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}
	return result, nil
}

// Concede 기권, 상대가 승리한다. 이미 종료된 세션에서는 무시된다.
func (ds *DuelSession) Concede(userID string) error {
	if !ds.HasParticipant(userID) {
		return ErrUnauthorized
	}

	ds.mu.Lock()
	if ds.record.Status.IsTerminal() {
		ds.mu.Unlock()
		return nil
	}
	ds.touch()

	winner := ds.record.Opponent(userID)
	conceder := userID
	closed := ds.finalizeLocked(&winner, &conceder, ReasonConcede)
	ds.mu.Unlock()

	if closed {
		ds.flush(ds.svc.cfg.FinalizeRetries)
	}
	return nil
}

// ExpireByTimeout 제한 시간 만료 처리
// 통과한 케이스 수가 더 많은 참가자가 승리하고, 같으면 무승부다.
func (ds *DuelSession) ExpireByTimeout() bool {
	ds.mu.Lock()
	if ds.record.Status != models.SessionStatusActive {
		ds.mu.Unlock()
		return false
	}

	a := ds.record.Participants[0].UserID
	b := ds.record.Participants[1].UserID

	var winner *string
	switch pa, pb := ds.bestPassed[a], ds.bestPassed[b]; {
	case pa > pb:
		winner = &a
	case pb > pa:
		winner = &b
	}
	closed := ds.finalizeLocked(winner, nil, ReasonTimeout)
	ds.mu.Unlock()

	if closed {
		ds.flush(ds.svc.cfg.FinalizeRetries)
	}
	return closed
}

// Acknowledge 참가자의 결과 확인, 세션을 내보내도 되면 true
func (ds *DuelSession) Acknowledge(userID string) (bool, error) {
	if !ds.HasParticipant(userID) {
		return false, ErrUnauthorized
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.record.Status.IsTerminal() {
		return false, ErrInvalidState
	}
	ds.acked[userID] = true
	return len(ds.acked) == 2 && !ds.persistPendingLocked(), nil
}

// sweep 비활성 세션 정리 및 미저장 결과 재시도
// 정리 주기를 붙잡지 않도록 저장은 한 번만 시도한다.
func (ds *DuelSession) sweep(now time.Time, threshold time.Duration) sweepResult {
	if ds.PersistPending() && !ds.flush(1) {
		return sweepResult{}
	}

	ds.mu.Lock()
	idle := now.Sub(ds.lastActivity)
	if ds.record.Status.IsTerminal() {
		evict := len(ds.acked) == 2 || idle > threshold
		ds.mu.Unlock()
		return sweepResult{evict: evict}
	}
	if idle <= threshold {
		ds.mu.Unlock()
		return sweepResult{}
	}

	var res sweepResult
	if ds.record.Status == models.SessionStatusPending && len(ds.bindings) == 0 {
		if ds.cancelLocked(ReasonAbandoned) {
			res.reaped = "cancelled"
		}
	} else if ds.finalizeLocked(nil, nil, ReasonInactivity) {
		res.reaped = "drawn"
	}
	ds.mu.Unlock()

	res.evict = ds.flush(1)
	return res
}

// stopTimer 종료 시 호출 (프로세스 종료 포함)
func (ds *DuelSession) stopTimer() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.timer != nil {
		ds.timer.Stop()
	}
}

func (ds *DuelSession) activateLocked() {
	if err := ds.transitionLocked(models.SessionStatusActive); err != nil {
		ds.svc.logger.Error("Failed to activate session", zap.String("sessionId", ds.record.ID), zap.Error(err))
		return
	}

	now := ds.svc.now()
	ds.record.StartTime = &now
	ds.timer = time.AfterFunc(ds.record.TimeLimit, func() { ds.ExpireByTimeout() })

	status := models.SessionStatusActive
	ctx, cancel := ds.svc.persistContext()
	defer cancel()
	if err := ds.svc.repo.UpdateSession(ctx, ds.record.ID, models.SessionPatch{Status: &status, StartTime: &now}); err != nil {
		// 종료 시점 기록에 시작 시각이 다시 포함된다
		ds.svc.logger.Warn("Failed to persist session start",
			zap.String("sessionId", ds.record.ID),
			zap.Error(err))
	}

	payload := ds.startedPayloadLocked()
	for _, conn := range ds.bindings {
		ds.svc.notifier.Send(conn, EventMatchStarted, payload)
	}

	ds.svc.logger.Info("Duel started",
		zap.String("sessionId", ds.record.ID),
		zap.String("problemId", ds.record.ProblemID),
		zap.Duration("timeLimit", ds.record.TimeLimit))
}

// finalizeLocked 완료 전이와 알림, 저장할 결과 준비
// 전이했으면 true를 반환하며, 호출자는 mu를 놓은 뒤 flush해야 한다.
func (ds *DuelSession) finalizeLocked(winner, concededBy *string, reason string) bool {
	if err := ds.transitionLocked(models.SessionStatusCompleted); err != nil {
		return false
	}
	if ds.timer != nil {
		ds.timer.Stop()
	}

	now := ds.svc.now()
	ds.record.EndTime = &now
	ds.record.WinnerID = winner
	ds.record.ConcededBy = concededBy
	ds.reason = reason
	ds.lastActivity = now

	a, b := ds.record.Participants[0], ds.record.Participants[1]
	outcomeA := models.OutcomeDraw
	if winner != nil {
		if *winner == a.UserID {
			outcomeA = models.OutcomeWin
		} else {
			outcomeA = models.OutcomeLoss
		}
	}
	deltaA, deltaB := ds.svc.elo.Rate(a.Rating, b.Rating, outcomeA)
	ds.record.RatingDelta = map[string]int{a.UserID: deltaA, b.UserID: deltaB}

	status := models.SessionStatusCompleted
	ds.pendingPatch = &models.SessionPatch{
		Status:      &status,
		StartTime:   ds.record.StartTime,
		EndTime:     &now,
		WinnerID:    winner,
		ConcededBy:  concededBy,
		RatingDelta: map[string]int{a.UserID: deltaA, b.UserID: deltaB},
	}
	ds.pendingRatings = []ratingWrite{
		{userID: a.UserID, delta: deltaA, outcome: outcomeA},
		{userID: b.UserID, delta: deltaB, outcome: outcomeA.Opposite()},
	}

	payload := ds.completedPayloadLocked()
	if concededBy != nil && winner != nil {
		winnerConn := ds.bindings[*winner]
		if winnerConn != "" {
			ds.svc.notifier.Send(winnerConn, EventOpponentConceded, payload)
		}
		ds.svc.notifier.Publish(ds.record.ID, EventMatchCompleted, payload, winnerConn)
	} else {
		ds.svc.notifier.Publish(ds.record.ID, EventMatchCompleted, payload, "")
	}

	ds.svc.logger.Info("Duel completed",
		zap.String("sessionId", ds.record.ID),
		zap.String("reason", reason),
		zap.Stringp("winner", winner),
		zap.Any("ratingDelta", ds.record.RatingDelta))
	ds.svc.finalized(ds.record.Clone(), reason)
	return true
}

func (ds *DuelSession) cancelLocked(reason string) bool {
	if err := ds.transitionLocked(models.SessionStatusCancelled); err != nil {
		return false
	}
	if ds.timer != nil {
		ds.timer.Stop()
	}

	now := ds.svc.now()
	ds.record.EndTime = &now
	ds.reason = reason
	ds.lastActivity = now

	status := models.SessionStatusCancelled
	ds.pendingPatch = &models.SessionPatch{Status: &status, EndTime: &now}

	ds.svc.notifier.Publish(ds.record.ID, EventMatchCancelled, MatchCancelledPayload{
		SessionID: ds.record.ID,
		Reason:    reason,
	}, "")

	ds.svc.logger.Info("Duel cancelled", zap.String("sessionId", ds.record.ID), zap.String("reason", reason))
	ds.svc.finalized(ds.record.Clone(), reason)
	return true
}

// flush 미저장 종료 결과를 최대 attempts번 저장 시도, mu를 잡은 채로 호출하면 안 된다
// 남은 결과가 없으면 true.
func (ds *DuelSession) flush(attempts int) bool {
	if attempts < 1 {
		attempts = 1
	}

	ds.persistMu.Lock()
	defer ds.persistMu.Unlock()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			ds.svc.metrics.PersistRetried()
			time.Sleep(ds.svc.cfg.RetryInterval)
		}
		if err = ds.persistOnce(); err == nil {
			return true
		}
	}

	ds.svc.logger.Error("Failed to persist session outcome, will retry from sweeper",
		zap.String("sessionId", ds.record.ID),
		zap.Int("attempts", attempts),
		zap.Error(err))
	return false
}

// persistOnce 저장소 호출은 mu 밖에서 하고, 성공한 항목만 mu 아래에서 지운다.
// 종료 결과는 세션당 한 번만 채워지므로 persistMu 아래에서는 스냅샷이 그대로 유효하다.
func (ds *DuelSession) persistOnce() error {
	ds.mu.Lock()
	patch := ds.pendingPatch
	ratings := append([]ratingWrite(nil), ds.pendingRatings...)
	ds.mu.Unlock()

	ctx, cancel := ds.svc.persistContext()
	defer cancel()

	if patch != nil {
		err := ds.svc.repo.UpdateSession(ctx, ds.record.ID, *patch)
		if errors.Is(err, models.ErrSessionClosed) {
			// 이전 시도가 실제로는 반영됐거나 다른 인스턴스가 먼저 닫았다.
			// 레이팅 반영 여부는 ApplyRatingDelta가 레코드 상태로 판단한다.
			ds.svc.logger.Warn("Session record already closed",
				zap.String("sessionId", ds.record.ID),
				zap.Error(err))
		} else if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		ds.mu.Lock()
		ds.pendingPatch = nil
		ds.mu.Unlock()
	}

	for _, w := range ratings {
		err := ds.svc.repo.ApplyRatingDelta(ctx, ds.record.ID, w.userID, w.delta, w.outcome)
		if errors.Is(err, models.ErrSessionClosed) {
			ds.svc.logger.Warn("Session record closed elsewhere, skipping rating updates",
				zap.String("sessionId", ds.record.ID),
				zap.Error(err))
			ds.mu.Lock()
			ds.pendingRatings = nil
			ds.mu.Unlock()
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to apply rating for %s: %w", w.userID, err)
		}
		ds.mu.Lock()
		ds.pendingRatings = ds.pendingRatings[1:]
		ds.mu.Unlock()
	}
	return nil
}

func (ds *DuelSession) persistPendingLocked() bool {
	return ds.pendingPatch != nil || len(ds.pendingRatings) > 0
}

func (ds *DuelSession) transitionLocked(next models.SessionStatus) error {
	if !ds.record.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, ds.record.Status, next)
	}
	ds.record.Status = next
	ds.transitions = append(ds.transitions, next)
	return nil
}

func (ds *DuelSession) touch() {
	ds.lastActivity = ds.svc.now()
}

func (ds *DuelSession) sendTerminalLocked(connID string) {
	if ds.record.Status == models.SessionStatusCancelled {
		ds.svc.notifier.Send(connID, EventMatchCancelled, MatchCancelledPayload{
			SessionID: ds.record.ID,
			Reason:    ds.reason,
		})
		return
	}
	ds.svc.notifier.Send(connID, EventMatchCompleted, ds.completedPayloadLocked())
}

func (ds *DuelSession) startedPayloadLocked() MatchStartedPayload {
	var start time.Time
	if ds.record.StartTime != nil {
		start = *ds.record.StartTime
	}
	return MatchStartedPayload{
		SessionID:    ds.record.ID,
		Problem:      ds.problem.View(ds.record.TimeLimit),
		Participants: ds.record.Participants,
		StartTime:    start,
	}
}

func (ds *DuelSession) completedPayloadLocked() MatchCompletedPayload {
	delta := make(map[string]int, len(ds.record.RatingDelta))
	for k, v := range ds.record.RatingDelta {
		delta[k] = v
	}
	return MatchCompletedPayload{
		SessionID:   ds.record.ID,
		Winner:      ds.record.WinnerID,
		ConcededBy:  ds.record.ConcededBy,
		RatingDelta: delta,
		Reason:      ds.reason,
	}
}
