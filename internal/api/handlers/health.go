package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 의존성 헬스 체크
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler 서버 및 데이터베이스 상태 확인
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck godoc
// @Summary Health check
// @Description Check if the API server and its database are reachable
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string "Server is healthy"
// @Failure 503 {object} map[string]string "Database unreachable"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"service":  "codeclash-backend",
				"database": "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "codeclash-backend",
		"database": "ok",
	})
}
