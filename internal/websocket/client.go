package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (code submissions included)
	maxMessageSize = 64 * 1024
)

// EventHandler 클라이언트 이벤트 처리기
type EventHandler interface {
	HandleEvent(c *Client, env Envelope)
}

// Client WebSocket 클라이언트
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan *Message
	id      string
	userID  string // 익명 연결이면 빈 문자열
	handler EventHandler
	logger  *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, id, userID string, handler EventHandler, logger *zap.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan *Message, 256),
		id:      id,
		userID:  userID,
		handler: handler,
		logger:  logger,
	}
}

// ID 연결 ID
func (c *Client) ID() string { return c.id }

// UserID 인증된 사용자 ID (익명이면 빈 문자열)
func (c *Client) UserID() string { return c.userID }

// readPump 클라이언트 이벤트 읽기 및 처리 (핑/퐁 유지)
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					zap.String("connId", c.id),
					zap.Error(err))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.hub.Send(c.id, eventError, errorPayload{Message: "malformed event", Code: codeBadRequest})
			continue
		}
		c.dispatch(env)
	}
}

// dispatch 처리기 패닉이 연결 전체를 끊지 않도록 격리
func (c *Client) dispatch(env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Event handler panicked",
				zap.String("connId", c.id),
				zap.String("type", env.Type),
				zap.Any("panic", r))
			c.hub.Send(c.id, eventError, errorPayload{Message: "internal error", Code: codeInternal})
		}
	}()
	c.handler.HandleEvent(c, env)
}

// writePump Hub로부터 메시지를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// JSON으로 인코딩
			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message",
					zap.String("connId", c.id),
					zap.Error(err))
				continue
			}

			// 메시지 전송
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message",
					zap.String("connId", c.id),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			// Ping 전송
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
