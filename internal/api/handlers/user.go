package handlers

import (
	"context"
	"net/http"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// UserReader 사용자 조회
type UserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type UserHandler struct {
	users UserReader
}

// NewUserHandler UserHandler 생성
func NewUserHandler(users UserReader) *UserHandler {
	return &UserHandler{users: users}
}

// GetCurrentUser 현재 사용자의 레이팅과 전적
// 한 번도 듀얼하지 않은 사용자는 기본 레이팅으로 응답한다.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to get user", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}
	if user == nil {
		user = &models.User{ID: userID, Rating: models.DefaultRating}
	}

	c.JSON(http.StatusOK, user)
}
