package middleware

import (
	"net/http"
	"strings"

	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ContextUserID 인증된 사용자 ID가 저장되는 context 키
const ContextUserID = "userID"

// Auth JWT 인증 미들웨어 (자격 증명 필수)
func Auth(identity service.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		if !resolve(c, identity, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth 자격 증명이 없으면 익명으로 통과, 잘못된 자격 증명은 401
// WebSocket 업그레이드 전에 사용한다.
func OptionalAuth(identity service.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			c.Next()
			return
		}

		if !resolve(c, identity, token) {
			return
		}
		c.Next()
	}
}

func resolve(c *gin.Context, identity service.IdentityProvider, token string) bool {
	userID, err := identity.Resolve(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid or expired token",
		})
		c.Abort()
		return false
	}

	c.Set(ContextUserID, userID)
	return true
}

// extractToken "Bearer <token>" 헤더 또는 token 쿼리 파라미터
// 브라우저 WebSocket은 헤더를 지정할 수 없어 쿼리를 허용한다.
func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			// 형식이 틀린 헤더는 잘못된 토큰으로 취급
			return authHeader, true
		}
		return parts[1], true
	}

	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
