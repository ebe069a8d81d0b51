package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/pkg/distributed"
	"github.com/codeclash/codeclash-backend/pkg/metrics"
	"go.uber.org/zap"
)

// SweeperLockKey 인스턴스 간 고아 세션 정리 락
const SweeperLockKey = "duel:sweeper:lock"

// SweepReport 정리 주기 한 번의 결과
type SweepReport struct {
	Evicted   int
	Cancelled int
	Drawn     int
	Pending   int   // 저장 재시도가 남은 세션
	Orphans   int64 // 영속 계층에서 취소된 세션
}

// CleanupService 비활성 세션 정리
type CleanupService struct {
	duels     *DuelService
	orphans   OrphanReaper
	locker    Locker
	metrics   *metrics.Metrics
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration
	orphanAge time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewCleanupService 정리 서비스 생성
// orphanAge보다 오래된 미종료 세션 레코드는 다른 인스턴스가 버린 것으로 본다.
func NewCleanupService(
	duels *DuelService,
	orphans OrphanReaper,
	interval, threshold, orphanAge time.Duration,
	logger *zap.Logger,
) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		duels:     duels,
		orphans:   orphans,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		orphanAge: orphanAge,
		stopChan:  make(chan struct{}),
	}
}

// SetLocker 분산 락 설정 (없으면 락 없이 정리)
func (s *CleanupService) SetLocker(locker Locker) {
	s.locker = locker
}

// SetMetrics 메트릭 설정
func (s *CleanupService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start 정리 루프 시작
func (s *CleanupService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting CleanupService",
		zap.Duration("interval", s.interval),
		zap.Duration("threshold", s.threshold))

	s.wg.Add(1)
	go s.cleanupLoop()
}

// Stop 정리 루프 중지
func (s *CleanupService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("CleanupService stopped")
}

func (s *CleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce 정리 한 주기 실행
func (s *CleanupService) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport
	now := s.duels.now()

	for _, ds := range s.duels.store.List() {
		res := ds.sweep(now, s.threshold)
		switch res.reaped {
		case "cancelled":
			report.Cancelled++
		case "drawn":
			report.Drawn++
		}
		if res.evict {
			s.duels.evict(ds.ID())
			report.Evicted++
		} else if ds.PersistPending() {
			report.Pending++
		}
	}

	report.Orphans = s.reapOrphans(ctx, now)

	s.metrics.SessionReaped("cancelled", report.Cancelled)
	s.metrics.SessionReaped("drawn", report.Drawn)
	s.metrics.SessionReaped("evicted", report.Evicted)
	s.metrics.SessionReaped("orphaned", int(report.Orphans))

	if report.Evicted+report.Cancelled+report.Drawn+report.Pending > 0 || report.Orphans > 0 {
		s.logger.Info("Sweep completed",
			zap.Int("evicted", report.Evicted),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("drawn", report.Drawn),
			zap.Int("pendingPersistence", report.Pending),
			zap.Int64("orphans", report.Orphans))
	}
	return report
}

// reapOrphans 메모리에 없는 오래된 미종료 세션 레코드 취소
func (s *CleanupService) reapOrphans(ctx context.Context, now time.Time) int64 {
	if s.orphans == nil {
		return 0
	}

	var reaped int64
	fn := func(ctx context.Context) error {
		n, err := s.orphans.CancelStaleSessions(ctx, now.Add(-s.orphanAge), s.duels.store.IDs())
		reaped = n
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, SweeperLockKey, s.interval, fn)
	} else {
		err = fn(ctx)
	}

	if errors.Is(err, distributed.ErrLockNotAcquired) {
		s.logger.Debug("Another instance is sweeping orphans")
		return 0
	}
	if errors.Is(err, distributed.ErrLockNotHeld) {
		s.logger.Warn("Lost sweeper lock during orphan pass", zap.Error(err))
		return 0
	}
	if err != nil {
		s.logger.Error("Failed to cancel orphaned sessions", zap.Error(err))
		return 0
	}
	return reaped
}
