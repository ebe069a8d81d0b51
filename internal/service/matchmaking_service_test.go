package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type matchmakingFixture struct {
	mm       *MatchmakingService
	duels    *duelFixture
	history  *fakeHistory
	notifier *fakeNotifier
}

func newMatchmakingFixture(t *testing.T) *matchmakingFixture {
	t.Helper()

	duels := newDuelFixture(t)
	history := &fakeHistory{}
	ratings := &fakeRatings{ratings: map[string]int{
		"alice": 1200,
		"bob":   1250,
		"carol": 1800,
		"dave":  1210,
	}}

	mm := NewMatchmakingService(ratings, duels.svc, history, duels.notifier, time.Hour, nil)
	return &matchmakingFixture{mm: mm, duels: duels, history: history, notifier: duels.notifier}
}

func TestMatchmakingService_JoinQueuesUser(t *testing.T) {
	f := newMatchmakingFixture(t)

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))

	queued := f.notifier.sent(conn("alice"), EventQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, QueuedPayload{Position: 1, Rating: 1200}, queued[0].data)
	assert.True(t, f.mm.Queue().Contains("alice"))

	assert.ErrorIs(t, f.mm.Join(context.Background(), "alice", conn("alice")), ErrAlreadyQueued)
	assert.ErrorIs(t, f.mm.Join(context.Background(), "nobody", "c"), ErrUserNotFound)
}

func TestMatchmakingService_JoinPairsUsers(t *testing.T) {
	f := newMatchmakingFixture(t)

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))
	require.NoError(t, f.mm.Join(context.Background(), "bob", conn("bob")))

	assert.Equal(t, 0, f.mm.Queue().Len())

	aliceFound := f.notifier.sent(conn("alice"), EventMatchFound)
	bobFound := f.notifier.sent(conn("bob"), EventMatchFound)
	require.Len(t, aliceFound, 1)
	require.Len(t, bobFound, 1)

	a := aliceFound[0].data.(MatchFoundPayload)
	b := bobFound[0].data.(MatchFoundPayload)
	assert.Equal(t, a.SessionID, b.SessionID)
	assert.Equal(t, models.Participant{UserID: "alice", Rating: 1200}, b.Opponent)
	assert.Equal(t, models.Participant{UserID: "bob", Rating: 1250}, a.Opponent)

	session, err := f.duels.svc.Get(a.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPending, session.Status)

	records := f.history.all()
	require.Len(t, records, 1)
	assert.Equal(t, a.SessionID, records[0].SessionID)
	assert.Equal(t, 50, records[0].RatingDifference)

	// 열린 세션이 있으면 다시 줄 설 수 없다
	assert.ErrorIs(t, f.mm.Join(context.Background(), "alice", conn("alice")), ErrAlreadyInSession)
}

func TestMatchmakingService_PairsClosestRating(t *testing.T) {
	f := newMatchmakingFixture(t)

	_, _, err := f.mm.Queue().Enqueue("carol", conn("carol"), 1800)
	require.NoError(t, err)
	_, _, err = f.mm.Queue().Enqueue("bob", conn("bob"), 1250)
	require.NoError(t, err)

	require.NoError(t, f.mm.Join(context.Background(), "dave", conn("dave")))

	found := f.notifier.sent(conn("dave"), EventMatchFound)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].data.(MatchFoundPayload).Opponent.UserID)
	assert.True(t, f.mm.Queue().Contains("carol"))
}

func TestMatchmakingService_PairingFailureRestoresBoth(t *testing.T) {
	f := newMatchmakingFixture(t)
	f.duels.repo.createErr = errStoreDown

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))
	require.NoError(t, f.mm.Join(context.Background(), "bob", conn("bob")))

	assert.True(t, f.mm.Queue().Contains("alice"))
	assert.True(t, f.mm.Queue().Contains("bob"))
	assert.Len(t, f.notifier.sent(conn("alice"), EventMatchmakingError), 1)
	assert.Len(t, f.notifier.sent(conn("bob"), EventMatchmakingError), 1)
	assert.Equal(t, 0, f.duels.svc.Store().Len())
	assert.Empty(t, f.history.all())

	// 저장소가 복구되면 다음 주기에 매칭된다
	f.duels.repo.createErr = nil
	assert.Equal(t, 1, f.mm.RunPairingPass(context.Background()))
	assert.Equal(t, 0, f.mm.Queue().Len())
	assert.Len(t, f.notifier.sent(conn("alice"), EventMatchFound), 1)
}

func TestMatchmakingService_Cancel(t *testing.T) {
	f := newMatchmakingFixture(t)

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))
	assert.True(t, f.mm.Cancel("alice"))
	assert.False(t, f.mm.Cancel("alice"))
	assert.Len(t, f.notifier.sent(conn("alice"), EventMatchmakingCancelled), 1)
	assert.Equal(t, 0, f.mm.Queue().Len())
}

func TestMatchmakingService_Disconnect(t *testing.T) {
	f := newMatchmakingFixture(t)

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))
	assert.False(t, f.mm.Disconnect("alice", "other"))
	assert.True(t, f.mm.Disconnect("alice", conn("alice")))
	assert.False(t, f.mm.Queue().Contains("alice"))
}

func TestMatchmakingService_StartStop(t *testing.T) {
	f := newMatchmakingFixture(t)
	f.mm.interval = 10 * time.Millisecond
	f.duels.repo.createErr = errStoreDown

	require.NoError(t, f.mm.Join(context.Background(), "alice", conn("alice")))
	require.NoError(t, f.mm.Join(context.Background(), "bob", conn("bob")))
	f.duels.repo.mu.Lock()
	f.duels.repo.createErr = nil
	f.duels.repo.mu.Unlock()

	f.mm.Start()
	f.mm.Start()
	defer f.mm.Stop()

	assert.Eventually(t, func() bool {
		return f.mm.Queue().Len() == 0
	}, time.Second, 10*time.Millisecond)

	f.mm.Stop()
	f.mm.Stop()
}

// gatedRatings 첫 번째 gateUser 조회를 release가 닫힐 때까지 붙잡는다
type gatedRatings struct {
	inner    RatingReader
	gateUser string
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (g *gatedRatings) GetRating(ctx context.Context, userID string) (int, error) {
	if userID == g.gateUser {
		gated := false
		g.once.Do(func() { gated = true })
		if gated {
			close(g.entered)
			<-g.release
		}
	}
	return g.inner.GetRating(ctx, userID)
}

func TestMatchmakingService_JoinDuringRatingLookupCannotDoubleBook(t *testing.T) {
	duels := newDuelFixture(t)
	ratings := &gatedRatings{
		inner: &fakeRatings{ratings: map[string]int{
			"alice": 1200,
			"bob":   1250,
			"dave":  1210,
		}},
		gateUser: "alice",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	mm := NewMatchmakingService(ratings, duels.svc, &fakeHistory{}, duels.notifier, time.Hour, nil)
	ctx := context.Background()

	// 두 번째 탭의 입장은 레이팅 조회에서 멈춘다
	secondTab := make(chan error, 1)
	go func() { secondTab <- mm.Join(ctx, "alice", "alice-tab2") }()
	<-ratings.entered

	// 그 사이 첫 번째 탭이 매칭된다
	require.NoError(t, mm.Join(ctx, "alice", conn("alice")))
	require.NoError(t, mm.Join(ctx, "bob", conn("bob")))
	require.Len(t, duels.svc.Store().ForUser("alice"), 1)

	close(ratings.release)
	assert.ErrorIs(t, <-secondTab, ErrAlreadyInSession)
	assert.False(t, mm.Queue().Contains("alice"))

	require.NoError(t, mm.Join(ctx, "dave", conn("dave")))
	assert.Len(t, duels.svc.Store().ForUser("alice"), 1)
	assert.True(t, mm.Queue().Contains("dave"))
}

func TestMatchmakingService_DropsQueuedUserWithOpenSession(t *testing.T) {
	f := newMatchmakingFixture(t)
	ctx := context.Background()

	f.duels.create(t, "alice", "bob")

	// 열린 세션이 있는데도 남아 있는 대기자
	_, _, err := f.mm.Queue().Enqueue("alice", "alice-tab2", 1200)
	require.NoError(t, err)
	_, _, err = f.mm.Queue().Enqueue("carol", conn("carol"), 1800)
	require.NoError(t, err)

	// dave와 가장 가까운 alice는 버려지고 carol과 매칭된다
	require.NoError(t, f.mm.Join(ctx, "dave", conn("dave")))

	assert.Equal(t, 0, f.mm.Queue().Len())
	assert.Len(t, f.duels.svc.Store().ForUser("alice"), 1)

	dropped := f.notifier.sent("alice-tab2", EventMatchmakingError)
	require.Len(t, dropped, 1)
	assert.Equal(t, "already_in_session", dropped[0].data.(ErrorPayload).Code)

	found := f.notifier.sent(conn("dave"), EventMatchFound)
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].data.(MatchFoundPayload).Opponent.UserID)
}
