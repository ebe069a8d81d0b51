package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtutil "github.com/codeclash/codeclash-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/ping", mw, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})
	return r
}

func doGet(r http.Handler, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	m := jwtutil.NewJWTManager("secret", time.Hour)
	token, err := m.Generate("user-1", "alice")
	require.NoError(t, err)

	r := newAuthRouter(Auth(m))

	t.Run("bearer header", func(t *testing.T) {
		w := doGet(r, "/ping", "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		w := doGet(r, "/ping?token="+token, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})

	t.Run("missing credential", func(t *testing.T) {
		w := doGet(r, "/ping", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := doGet(r, "/ping", "Token "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := doGet(r, "/ping", "Bearer garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	m := jwtutil.NewJWTManager("secret", time.Hour)
	token, err := m.Generate("user-2", "bob")
	require.NoError(t, err)

	expired, err := jwtutil.NewJWTManager("secret", -time.Minute).Generate("user-2", "bob")
	require.NoError(t, err)

	r := newAuthRouter(OptionalAuth(m))

	w := doGet(r, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String(), "absent credential is anonymous")

	w = doGet(r, "/ping?token="+token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-2", w.Body.String())

	w = doGet(r, "/ping?token="+expired, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
