package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser 인증 미들웨어 대신 사용자 ID를 설정
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	}
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

type fakePinger struct{ err error }

func (f fakePinger) Health(context.Context) error { return f.err }

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/ok", NewHealthHandler(fakePinger{}).HealthCheck)
	r.GET("/down", NewHealthHandler(fakePinger{err: errors.New("connection refused")}).HealthCheck)

	w := get(r, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = get(r, "/down")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unreachable"`)
}

type fakeLive map[string]*models.Session

func (f fakeLive) Get(id string) (*models.Session, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, service.ErrSessionNotFound
}

type fakeRecords struct {
	sessions map[string]*models.Session
	err      error
	calls    int
}

func (f *fakeRecords) FindByID(_ context.Context, id string) (*models.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[id], nil
}

func duel(id string, status models.SessionStatus) *models.Session {
	return &models.Session{
		ID:     id,
		Status: status,
		Participants: [2]models.Participant{
			{UserID: "alice", Rating: 1200},
			{UserID: "bob", Rating: 1220},
		},
	}
}

func TestGetDuel(t *testing.T) {
	live := fakeLive{"live-1": duel("live-1", models.SessionStatusActive)}
	records := &fakeRecords{sessions: map[string]*models.Session{
		"old-1": duel("old-1", models.SessionStatusCompleted),
	}}
	h := NewDuelHandler(live, records)

	newRouter := func(userID string) *gin.Engine {
		r := gin.New()
		r.GET("/duels/:id", asUser(userID), h.GetDuel)
		return r
	}

	t.Run("live session from memory", func(t *testing.T) {
		records.calls = 0
		w := get(newRouter("alice"), "/duels/live-1")
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.SessionStatusActive, got.Status)
		assert.Zero(t, records.calls)
	})

	t.Run("finished session from database", func(t *testing.T) {
		w := get(newRouter("bob"), "/duels/old-1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"completed"`)
	})

	t.Run("non participant", func(t *testing.T) {
		w := get(newRouter("mallory"), "/duels/live-1")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown", func(t *testing.T) {
		w := get(newRouter("alice"), "/duels/nope")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("database error", func(t *testing.T) {
		failing := NewDuelHandler(live, &fakeRecords{err: errors.New("db down")})
		r := gin.New()
		r.GET("/duels/:id", asUser("alice"), failing.GetDuel)

		w := get(r, "/duels/old-1")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type fakeHistory struct {
	rows      []models.MatchmakingHistory
	lastLimit int
	err       error
}

func (f *fakeHistory) RecentForUser(_ context.Context, _ string, limit int) ([]models.MatchmakingHistory, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

type fakeQueue struct{ queued map[string]bool }

func (f fakeQueue) Contains(userID string) bool { return f.queued[userID] }
func (f fakeQueue) Len() int                    { return len(f.queued) }

func TestMatchmakingHandler(t *testing.T) {
	history := &fakeHistory{rows: []models.MatchmakingHistory{
		{ID: "h1", UserAID: "alice", UserBID: "bob", SessionID: "s1", RatingDifference: 20},
	}}
	h := NewMatchmakingHandler(history, fakeQueue{queued: map[string]bool{"alice": true}})

	r := gin.New()
	r.GET("/status", asUser("alice"), h.GetStatus)
	r.GET("/history", asUser("alice"), h.GetHistory)

	w := get(r, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"queued":true,"queueSize":1}`, w.Body.String())

	w = get(r, "/history")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistoryLimit, history.lastLimit)
	assert.Contains(t, w.Body.String(), `"sessionId":"s1"`)

	w = get(r, "/history?limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryLimit, history.lastLimit)

	w = get(r, "/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	history.err = errors.New("db down")
	w = get(r, "/history")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeUsers map[string]*models.User

func (f fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return f[id], nil
}

func TestGetCurrentUser(t *testing.T) {
	h := NewUserHandler(fakeUsers{"alice": {ID: "alice", Rating: 1316, Wins: 4}})

	r := gin.New()
	r.GET("/me/:as", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, c.Param("as"))
		h.GetCurrentUser(c)
	})

	w := get(r, "/me/alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rating":1316`)

	w = get(r, "/me/newcomer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rating":1200`)
}

type recordingServer struct{ userID string }

func (s *recordingServer) ServeWs(w http.ResponseWriter, _ *http.Request, userID string) {
	s.userID = userID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestHandleWebSocket_PassesIdentity(t *testing.T) {
	srv := &recordingServer{}
	h := NewWebSocketHandler(srv)

	r := gin.New()
	r.GET("/ws", asUser("alice"), h.HandleWebSocket)
	r.GET("/anon", asUser(""), h.HandleWebSocket)

	get(r, "/ws")
	assert.Equal(t, "alice", srv.userID)

	get(r, "/anon")
	assert.Empty(t, srv.userID)
}
