package handlers

import (
	"net/http"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

// WebSocketServer 연결 업그레이드 담당 (Gateway)
type WebSocketServer interface {
	ServeWs(w http.ResponseWriter, r *http.Request, userID string)
}

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	gateway WebSocketServer
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(gateway WebSocketServer) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트
// 인증 미들웨어가 userID를 설정하지 않았으면 익명 연결이 된다.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.gateway.ServeWs(c.Writer, c.Request, c.GetString(middleware.ContextUserID))
}
