package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
)

var errStoreDown = errors.New("store down")

type sentMessage struct {
	target string // connID 또는 room
	event  string
	except string
	room   bool
	data   interface{}
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (n *fakeNotifier) Send(connID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, sentMessage{target: connID, event: event, data: payload})
}

func (n *fakeNotifier) Publish(room, event string, payload interface{}, exceptConnID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, sentMessage{target: room, event: event, except: exceptConnID, room: true, data: payload})
}

// sent connID로 직접 보낸 event
func (n *fakeNotifier) sent(connID, event string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.messages {
		if !m.room && m.target == connID && m.event == event {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) published(room, event string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.messages {
		if m.room && m.target == room && m.event == event {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.messages {
		if m.event == event {
			c++
		}
	}
	return c
}

type appliedRating struct {
	delta   int
	outcome models.Outcome
}

type fakeSessionRepo struct {
	mu           sync.Mutex
	created      map[string]*models.Session
	patches      map[string][]models.SessionPatch
	submissions  map[string][]models.Submission
	ratings      map[string]appliedRating // sessionID/userID
	createErr    error
	updateFails  int // 종료 패치 실패 횟수
	updateCalls  int
	applyCalls   int
	ratingTotals map[string]int
	closed       map[string]bool // 다른 인스턴스가 취소한 세션
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		created:      make(map[string]*models.Session),
		patches:      make(map[string][]models.SessionPatch),
		submissions:  make(map[string][]models.Submission),
		ratings:      make(map[string]appliedRating),
		ratingTotals: make(map[string]int),
		closed:       make(map[string]bool),
	}
}

func (r *fakeSessionRepo) CreateSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.created[session.ID] = session.Clone()
	return nil
}

func (r *fakeSessionRepo) UpdateSession(ctx context.Context, id string, patch models.SessionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.closed[id] {
		return models.ErrSessionClosed
	}
	if patch.Status != nil && patch.Status.IsTerminal() && r.updateFails > 0 {
		r.updateFails--
		return errStoreDown
	}
	r.patches[id] = append(r.patches[id], patch)
	return nil
}

func (r *fakeSessionRepo) AddSubmission(ctx context.Context, sessionID string, sub models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[sessionID] = append(r.submissions[sessionID], sub)
	return nil
}

func (r *fakeSessionRepo) ApplyRatingDelta(ctx context.Context, sessionID, userID string, delta int, outcome models.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++
	if r.closed[sessionID] {
		return models.ErrSessionClosed
	}
	key := sessionID + "/" + userID
	if _, ok := r.ratings[key]; ok {
		return nil
	}
	r.ratings[key] = appliedRating{delta: delta, outcome: outcome}
	r.ratingTotals[userID] += delta
	return nil
}

func (r *fakeSessionRepo) setUpdateFails(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateFails = n
}

func (r *fakeSessionRepo) closeElsewhere(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[id] = true
}

func (r *fakeSessionRepo) submissionCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions[id])
}

func (r *fakeSessionRepo) rating(sessionID, userID string) (appliedRating, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.ratings[sessionID+"/"+userID]
	return a, ok
}

func (r *fakeSessionRepo) ratingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ratings)
}

func (r *fakeSessionRepo) lastPatch(id string) (models.SessionPatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.patches[id]
	if len(p) == 0 {
		return models.SessionPatch{}, false
	}
	return p[len(p)-1], true
}

// evalFunc 제출 코드별 채점 결과
type evalFunc func(code string, cases []models.TestCase) (*models.EvaluationResult, error)

type fakeProblems struct {
	mu       sync.Mutex
	problem  *models.Problem
	err      error
	eval     evalFunc
	lastCase []models.TestCase
}

func (p *fakeProblems) GetRandomProblem(ctx context.Context) (*models.Problem, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.problem, nil
}

func (p *fakeProblems) GetProblemByID(ctx context.Context, id string) (*models.Problem, error) {
	if p.problem != nil && p.problem.ID == id {
		return p.problem, nil
	}
	return nil, ErrProblemNotFound
}

func (p *fakeProblems) Evaluate(ctx context.Context, code, language string, cases []models.TestCase) (*models.EvaluationResult, error) {
	p.mu.Lock()
	p.lastCase = cases
	eval := p.eval
	p.mu.Unlock()
	return eval(code, cases)
}

func (p *fakeProblems) lastCases() []models.TestCase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCase
}

// passing code가 "pass:N" 형태면 앞의 N개 케이스만 통과
func passing(code string, cases []models.TestCase) (*models.EvaluationResult, error) {
	if code == "boom" {
		return nil, errors.New("judge unavailable")
	}
	n := len(cases)
	if _, err := fmt.Sscanf(code, "pass:%d", &n); err != nil {
		n = 0
		if code == "correct" {
			n = len(cases)
		}
	}
	res := &models.EvaluationResult{Passed: n >= len(cases)}
	for i := range cases {
		res.Results = append(res.Results, models.TestCaseResult{Index: i, Passed: i < n})
	}
	return res, nil
}

func testProblem() *models.Problem {
	return &models.Problem{
		ID:         "problem-1",
		Title:      "Two Sum",
		Difficulty: "easy",
		TimeLimit:  time.Hour,
		TestCases: []models.TestCase{
			{Input: "1 2", ExpectedOutput: "3"},
			{Input: "2 2", ExpectedOutput: "4", Hidden: true},
			{Input: "5 5", ExpectedOutput: "10", Hidden: true},
		},
	}
}

type fakeRatings struct {
	ratings map[string]int
}

func (f *fakeRatings) GetRating(ctx context.Context, userID string) (int, error) {
	r, ok := f.ratings[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return r, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []models.MatchmakingHistory
}

func (h *fakeHistory) RecordPairing(ctx context.Context, rec models.MatchmakingHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) all() []models.MatchmakingHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.MatchmakingHistory(nil), h.records...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []distributed.OutcomeEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event distributed.OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) all() []distributed.OutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]distributed.OutcomeEvent(nil), p.events...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOrphans struct {
	mu      sync.Mutex
	cutoffs []time.Time
	exclude [][]string
	n       int64
}

func (f *fakeOrphans) CancelStaleSessions(ctx context.Context, createdBefore time.Time, exclude []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, createdBefore)
	f.exclude = append(f.exclude, exclude)
	return f.n, nil
}

type fakeLocker struct {
	held  bool
	lose  bool // fn 실행 중 락을 잃는다
	calls int
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l.calls++
	if l.held {
		return distributed.ErrLockNotAcquired
	}
	if l.lose {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		_ = fn(ctx)
		return fmt.Errorf("locked section %s: %w", key, distributed.ErrLockNotHeld)
	}
	return fn(ctx)
}
