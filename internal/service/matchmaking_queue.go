package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// PairFunc 두 대기자를 세션으로 묶는다. 에러를 반환하면 두 대기자는 큐로 복원된다.
// 큐 잠금을 잡은 상태로 호출되므로 큐 메서드를 다시 호출하면 안 된다.
type PairFunc func(ctx context.Context, a, b models.QueueEntry) error

// StaleEntryError PairFunc가 반환하면 UserIDs의 대기자는 복원되지 않고 버려진다.
// 나머지 대기자는 원래 자리로 복원된다.
type StaleEntryError struct {
	UserIDs []string
}

func (e *StaleEntryError) Error() string {
	return "stale queue entries: " + strings.Join(e.UserIDs, ", ")
}

func (e *StaleEntryError) has(userID string) bool {
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MatchmakingQueue 인메모리 매칭 대기열
// 모든 변경은 하나의 뮤텍스 아래에서 일어나며, 대기자는 JoinedAt 순서로 유지된다.
type MatchmakingQueue struct {
	mu      sync.Mutex
	entries []models.QueueEntry
	now     func() time.Time
}

// NewMatchmakingQueue 매칭 큐 생성
func NewMatchmakingQueue() *MatchmakingQueue {
	return &MatchmakingQueue{now: time.Now}
}

// Enqueue 대기열 추가, 1부터 시작하는 대기 순번 반환
func (q *MatchmakingQueue) Enqueue(userID, connID string, rating int) (models.QueueEntry, int, error) {
	return q.EnqueueIf(userID, connID, rating, nil)
}

// EnqueueIf admit이 nil을 반환할 때만 추가한다.
// admit은 큐 잠금 아래에서 호출되므로 같은 잠금 아래의 매칭과 원자적으로 판단된다.
func (q *MatchmakingQueue) EnqueueIf(userID, connID string, rating int, admit func(userID string) error) (models.QueueEntry, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(userID) >= 0 {
		return models.QueueEntry{}, 0, ErrAlreadyQueued
	}
	if admit != nil {
		if err := admit(userID); err != nil {
			return models.QueueEntry{}, 0, err
		}
	}

	entry := models.QueueEntry{
		UserID:       userID,
		ConnectionID: connID,
		Rating:       rating,
		JoinedAt:     q.now(),
	}
	pos := q.insert(entry)
	return entry, pos + 1, nil
}

// Cancel 대기열에서 제거 (없으면 false)
func (q *MatchmakingQueue) Cancel(userID string) (models.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(userID)
	if i < 0 {
		return models.QueueEntry{}, false
	}
	entry := q.entries[i]
	q.removeAt(i)
	return entry, true
}

// CancelConnection connID로 들어온 대기자만 제거
func (q *MatchmakingQueue) CancelConnection(userID, connID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(userID)
	if i < 0 || q.entries[i].ConnectionID != connID {
		return false
	}
	q.removeAt(i)
	return true
}

// Contains 대기 여부
func (q *MatchmakingQueue) Contains(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(userID) >= 0
}

// Len 대기 인원
func (q *MatchmakingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// TryPair userID의 상대를 찾아 pair를 호출한다.
// 상대는 레이팅 차이가 가장 작은 대기자이며, 동률이면 먼저 들어온 대기자다.
// userID가 대기 중이 아니거나 상대가 없으면 (nil, nil, nil)을 반환한다.
func (q *MatchmakingQueue) TryPair(ctx context.Context, userID string, pair PairFunc) (*models.QueueEntry, *models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(userID)
	if i < 0 {
		return nil, nil, nil
	}
	j := q.closestTo(i)
	if j < 0 {
		return nil, nil, nil
	}

	a, b := q.entries[i], q.entries[j]
	q.removeUser(a.UserID)
	q.removeUser(b.UserID)

	if err := pair(ctx, a, b); err != nil {
		// 원래 순서대로 복원 (버려진 대기자 제외)
		var stale *StaleEntryError
		isStale := errors.As(err, &stale)
		for _, e := range []models.QueueEntry{a, b} {
			if !isStale || !stale.has(e.UserID) {
				q.insert(e)
			}
		}
		return &a, &b, err
	}
	return &a, &b, nil
}

// waiting 대기 중인 사용자 ID (먼저 들어온 순)
func (q *MatchmakingQueue) waiting() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.UserID
	}
	return ids
}

func (q *MatchmakingQueue) closestTo(i int) int {
	best, bestDiff := -1, 0
	for j, e := range q.entries {
		if j == i {
			continue
		}
		diff := abs(e.Rating - q.entries[i].Rating)
		if best < 0 || diff < bestDiff {
			best, bestDiff = j, diff
		}
	}
	return best
}

func (q *MatchmakingQueue) indexOf(userID string) int {
	for i, e := range q.entries {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}

func (q *MatchmakingQueue) insert(entry models.QueueEntry) int {
	i := sort.Search(len(q.entries), func(k int) bool {
		return q.entries[k].JoinedAt.After(entry.JoinedAt)
	})
	q.entries = append(q.entries, models.QueueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = entry
	return i
}

func (q *MatchmakingQueue) removeUser(userID string) {
	if i := q.indexOf(userID); i >= 0 {
		q.removeAt(i)
	}
}

func (q *MatchmakingQueue) removeAt(i int) {
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
