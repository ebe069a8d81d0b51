package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultOutcomeChannel 듀얼 결과 이벤트 채널
const DefaultOutcomeChannel = "duel:events"

// OutcomeEvent 종료된 듀얼 세션 요약 (대시보드/리더보드 등 표시 계층용)
type OutcomeEvent struct {
	Type         string         `json:"type"` // "duel_completed", "duel_cancelled"
	SessionID    string         `json:"sessionId"`
	ProblemID    string         `json:"problemId"`
	Participants []string       `json:"participants"`
	WinnerID     *string        `json:"winnerId,omitempty"`
	ConcededBy   *string        `json:"concededBy,omitempty"`
	RatingDelta  map[string]int `json:"ratingDelta,omitempty"`
	Reason       string         `json:"reason"`
	Instance     string         `json:"instance"`
	Timestamp    time.Time      `json:"timestamp"`
}

// OutcomePublisher Redis Pub/Sub 기반 결과 발행자
type OutcomePublisher struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *zap.Logger
}

// NewOutcomePublisher 결과 발행자 생성
func NewOutcomePublisher(client *redis.Client, instance string, logger *zap.Logger) *OutcomePublisher {
	return &OutcomePublisher{
		client:   client,
		channel:  DefaultOutcomeChannel,
		instance: instance,
		logger:   logger,
	}
}

// Channel 발행 채널 이름
func (p *OutcomePublisher) Channel() string {
	return p.channel
}

// Publish 결과 이벤트 발행
func (p *OutcomePublisher) Publish(ctx context.Context, event OutcomeEvent) error {
	event.Instance = p.instance
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish outcome event: %w", err)
	}

	p.logger.Debug("Published duel outcome",
		zap.String("type", event.Type),
		zap.String("sessionId", event.SessionID))

	return nil
}

// Subscribe 결과 이벤트 구독 (ctx 취소 시 종료)
func (p *OutcomePublisher) Subscribe(ctx context.Context, handler func(OutcomeEvent)) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event OutcomeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("Dropping malformed outcome event", zap.Error(err))
				continue
			}
			handler(event)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
