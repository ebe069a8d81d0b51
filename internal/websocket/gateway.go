package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/pkg/metrics"
	"github.com/codeclash/codeclash-backend/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errBadPayload = errors.New("invalid payload")

// Matchmaker 매칭 대기열 조작
type Matchmaker interface {
	Join(ctx context.Context, userID, connID string) error
	Cancel(userID string) bool
	Disconnect(userID, connID string) bool
}

// DuelHandler 세션 이벤트 처리
type DuelHandler interface {
	Authorize(sessionID, userID string) error
	JoinMatch(sessionID, userID, connID string) (string, error)
	RelayCode(sessionID, userID, code, language string) error
	RelayProgress(sessionID, userID string, progress json.RawMessage) error
	SendMessage(sessionID, userID, text string) error
	Submit(ctx context.Context, sessionID, userID, connID, code, language string) (*models.Submission, error)
	Run(ctx context.Context, sessionID, userID, code, language string) (*models.EvaluationResult, error)
	Concede(sessionID, userID string) error
	Leave(sessionID, userID string) error
	Disconnect(userID, connID string) []string
}

// Gateway 실시간 이벤트 라우팅
// 룸 멤버십은 Gateway만 변경한다.
type Gateway struct {
	hub         *Hub
	matchmaking Matchmaker
	duels       DuelHandler
	limiter     *ratelimit.RateLimiter
	metrics     *metrics.Metrics
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewGateway Gateway 생성 및 연결 해제 콜백 등록
// allowedOrigins가 비어 있거나 "*"를 포함하면 모든 origin을 허용한다.
func NewGateway(
	hub *Hub,
	matchmaking Matchmaker,
	duels DuelHandler,
	limiter *ratelimit.RateLimiter,
	allowedOrigins []string,
	logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		hub:         hub,
		matchmaking: matchmaking,
		duels:       duels,
		limiter:     limiter,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	hub.OnDisconnect(g.OnDisconnect)
	return g
}

// SetMetrics 메트릭 설정
func (g *Gateway) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
// userID가 비어 있으면 익명 연결이며, 신원이 필요한 이벤트는 거부된다.
func (g *Gateway) ServeWs(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(g.hub, conn, uuid.New().String(), userID, g, g.logger)
	g.hub.Register(client)

	// 고루틴 시작
	go client.writePump()
	go client.readPump()
}

// OnDisconnect 연결 해제 처리: 대기열 제거, 세션 바인딩 해제
func (g *Gateway) OnDisconnect(c *Client) {
	if g.limiter != nil {
		g.limiter.Forget(c.id)
	}
	if c.userID == "" {
		return
	}

	if g.matchmaking.Disconnect(c.userID, c.id) {
		g.logger.Debug("Removed queued user on disconnect", zap.String("userId", c.userID))
	}
	for _, sessionID := range g.duels.Disconnect(c.userID, c.id) {
		g.logger.Info("Participant disconnected",
			zap.String("sessionId", sessionID),
			zap.String("userId", c.userID))
	}
}

// HandleEvent 이벤트 하나를 처리
func (g *Gateway) HandleEvent(c *Client, env Envelope) {
	if g.limiter != nil && !g.limiter.Allow(c.id) {
		g.metrics.EventHandled(env.Type, "rate_limited")
		g.sendError(c, env.Type, service.ErrRateLimited)
		return
	}

	var err error
	switch env.Type {
	case EventJoinMatchmaking:
		err = g.withUser(c, func(userID string) error {
			return g.matchmaking.Join(context.Background(), userID, c.id)
		})

	case EventCancelMatchmaking:
		err = g.withUser(c, func(userID string) error {
			g.matchmaking.Cancel(userID)
			return nil
		})

	case EventJoinMatch:
		err = g.withSession(c, env, func(userID, sessionID string) error {
			return g.joinMatch(c, userID, sessionID)
		})

	case EventCodeUpdate:
		var req codeRequest
		err = g.withPayload(c, env, &req, func(userID string) error {
			return g.duels.RelayCode(req.SessionID, userID, req.Code, req.Language)
		})

	case EventProgressUpdate:
		var req progressRequest
		err = g.withPayload(c, env, &req, func(userID string) error {
			if len(req.Progress) == 0 {
				return errBadPayload
			}
			return g.duels.RelayProgress(req.SessionID, userID, req.Progress)
		})

	case EventSendMessage:
		var req messageRequest
		err = g.withPayload(c, env, &req, func(userID string) error {
			text := strings.TrimSpace(req.Text)
			if text == "" || len(text) > maxChatLength {
				return errBadPayload
			}
			return g.duels.SendMessage(req.SessionID, userID, text)
		})

	case EventSubmitCode:
		var req codeRequest
		err = g.withPayload(c, env, &req, func(userID string) error {
			if req.Code == "" {
				return errBadPayload
			}
			// 채점 중에도 같은 연결의 다른 이벤트는 계속 처리된다
			go g.submit(c, userID, req)
			return nil
		})

	case EventRunCode:
		var req codeRequest
		err = g.withPayload(c, env, &req, func(userID string) error {
			if req.Code == "" {
				return errBadPayload
			}
			go g.run(c, userID, req)
			return nil
		})

	case EventConcede:
		err = g.withSession(c, env, func(userID, sessionID string) error {
			return g.duels.Concede(sessionID, userID)
		})

	case EventLeaveMatch:
		err = g.withSession(c, env, func(userID, sessionID string) error {
			if err := g.duels.Leave(sessionID, userID); err != nil {
				return err
			}
			g.hub.LeaveRoom(sessionID, c.id)
			return nil
		})

	default:
		g.metrics.EventHandled("unknown", "error")
		g.hub.Send(c.id, eventError, errorPayload{Message: "unknown event type", Code: codeUnknownEvent, Event: env.Type})
		return
	}

	if err != nil {
		g.metrics.EventHandled(env.Type, "error")
		g.sendError(c, env.Type, err)
		return
	}
	g.metrics.EventHandled(env.Type, "ok")
}

// joinMatch 룸에 먼저 들어간 뒤 바인딩하여 시작 알림을 놓치지 않는다
func (g *Gateway) joinMatch(c *Client, userID, sessionID string) error {
	if err := g.duels.Authorize(sessionID, userID); err != nil {
		return err
	}
	g.hub.JoinRoom(sessionID, c.id)

	prev, err := g.duels.JoinMatch(sessionID, userID, c.id)
	if err != nil {
		g.hub.LeaveRoom(sessionID, c.id)
		return err
	}
	if prev != "" && prev != c.id {
		g.hub.LeaveRoom(sessionID, prev)
	}
	return nil
}

func (g *Gateway) submit(c *Client, userID string, req codeRequest) {
	// submission_result는 세션이 직접 보낸다
	if _, err := g.duels.Submit(context.Background(), req.SessionID, userID, c.id, req.Code, req.Language); err != nil {
		g.sendError(c, EventSubmitCode, err)
	}
}

func (g *Gateway) run(c *Client, userID string, req codeRequest) {
	result, err := g.duels.Run(context.Background(), req.SessionID, userID, req.Code, req.Language)
	if err != nil {
		g.sendError(c, EventRunCode, err)
		return
	}
	g.hub.Send(c.id, service.EventRunResult, service.RunResultPayload{
		SessionID: req.SessionID,
		Passed:    result.Passed,
		Results:   result.Results,
	})
}

func (g *Gateway) withUser(c *Client, fn func(userID string) error) error {
	if c.userID == "" {
		return service.ErrAuthRequired
	}
	return fn(c.userID)
}

func (g *Gateway) withSession(c *Client, env Envelope, fn func(userID, sessionID string) error) error {
	var req sessionRequest
	return g.withPayload(c, env, &req, func(userID string) error {
		return fn(userID, req.SessionID)
	})
}

// withPayload 인증 확인 후 페이로드 디코딩, sessionId 필수
func (g *Gateway) withPayload(c *Client, env Envelope, dst interface{}, fn func(userID string) error) error {
	return g.withUser(c, func(userID string) error {
		if len(env.Payload) == 0 {
			return errBadPayload
		}
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return errBadPayload
		}
		var ref sessionRequest
		if err := json.Unmarshal(env.Payload, &ref); err != nil || ref.SessionID == "" {
			return errBadPayload
		}
		return fn(userID)
	})
}

func (g *Gateway) sendError(c *Client, event string, err error) {
	code := errorCode(err)
	message := err.Error()
	if code == codeInternal {
		g.logger.Error("Event failed",
			zap.String("connId", c.id),
			zap.String("event", event),
			zap.Error(err))
		message = "internal error"
	}
	g.hub.Send(c.id, eventError, errorPayload{Message: message, Code: code, Event: event})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadPayload):
		return codeBadRequest
	case errors.Is(err, service.ErrAuthRequired):
		return codeAuthRequired
	case errors.Is(err, service.ErrUnauthorized):
		return codeUnauthorized
	case errors.Is(err, service.ErrAlreadyQueued):
		return codeAlreadyQueued
	case errors.Is(err, service.ErrAlreadyInSession):
		return codeAlreadyInSession
	case errors.Is(err, service.ErrSessionNotFound):
		return codeSessionNotFound
	case errors.Is(err, service.ErrInvalidState):
		return codeInvalidState
	case errors.Is(err, service.ErrEvaluationFailed):
		return codeEvaluationFailed
	case errors.Is(err, service.ErrRateLimited):
		return codeRateLimited
	default:
		return codeInternal
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
