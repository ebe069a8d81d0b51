package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// PairingHistory 매칭 기록 조회
type PairingHistory interface {
	RecentForUser(ctx context.Context, userID string, limit int) ([]models.MatchmakingHistory, error)
}

// QueueStatus 현재 대기열 상태
type QueueStatus interface {
	Contains(userID string) bool
	Len() int
}

type MatchmakingHandler struct {
	history PairingHistory
	queue   QueueStatus
}

// NewMatchmakingHandler MatchmakingHandler 생성
func NewMatchmakingHandler(history PairingHistory, queue QueueStatus) *MatchmakingHandler {
	return &MatchmakingHandler{
		history: history,
		queue:   queue,
	}
}

// GetStatus 대기열 참여 여부와 대기 인원
func (h *MatchmakingHandler) GetStatus(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	c.JSON(http.StatusOK, gin.H{
		"queued":    h.queue.Contains(userID),
		"queueSize": h.queue.Len(),
	})
}

// GetHistory 최근 매칭 기록 (?limit=N, 최대 100)
func (h *MatchmakingHandler) GetHistory(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history, err := h.history.RecentForUser(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Error("Failed to get matchmaking history", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get matchmaking history"})
		return
	}
	if history == nil {
		history = []models.MatchmakingHistory{}
	}

	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"total":   len(history),
	})
}
