package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// LiveSessions 메모리에 있는 세션 조회
type LiveSessions interface {
	Get(sessionID string) (*models.Session, error)
}

// SessionRecords 영속화된 세션 조회
type SessionRecords interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type DuelHandler struct {
	live    LiveSessions
	records SessionRecords
}

// NewDuelHandler DuelHandler 생성
func NewDuelHandler(live LiveSessions, records SessionRecords) *DuelHandler {
	return &DuelHandler{
		live:    live,
		records: records,
	}
}

// GetDuel 세션 스냅샷 조회 (참가자만)
// 진행 중이거나 아직 정리되지 않은 세션은 메모리, 그 외는 데이터베이스에서 읽는다.
func (h *DuelHandler) GetDuel(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString(middleware.ContextUserID)

	session, err := h.live.Get(id)
	if err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		logger.Error("Failed to read live session", "sessionId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get duel"})
		return
	}

	if session == nil {
		session, err = h.records.FindByID(c.Request.Context(), id)
		if err != nil {
			logger.Error("Failed to read duel record", "sessionId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get duel"})
			return
		}
	}

	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Duel not found"})
		return
	}

	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this duel"})
		return
	}

	c.JSON(http.StatusOK, session)
}
