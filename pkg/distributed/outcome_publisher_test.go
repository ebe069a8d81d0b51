package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOutcomePublisher_PublishSubscribe(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	pub := NewOutcomePublisher(client, "instance-a", zap.NewNop())
	assert.Equal(t, DefaultOutcomeChannel, pub.Channel())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan OutcomeEvent, 1)
	go func() {
		_ = pub.Subscribe(ctx, func(e OutcomeEvent) { received <- e })
	}()

	winner := "user-a"
	event := OutcomeEvent{
		Type:         "duel_completed",
		SessionID:    "s-1",
		Participants: []string{"user-a", "user-b"},
		WinnerID:     &winner,
		RatingDelta:  map[string]int{"user-a": 16, "user-b": -16},
		Reason:       "correct_submission",
	}

	// 구독이 준비될 때까지 재발행
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case got := <-received:
			assert.Equal(t, "s-1", got.SessionID)
			assert.Equal(t, "instance-a", got.Instance)
			require.NotNil(t, got.WinnerID)
			assert.Equal(t, "user-a", *got.WinnerID)
			assert.Equal(t, 16, got.RatingDelta["user-a"])
			return
		case <-ticker.C:
			require.NoError(t, pub.Publish(ctx, event))
		case <-deadline:
			t.Fatal("outcome event not received")
		}
	}
}
