package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub WebSocket 연결과 세션 룸 관리
type Hub struct {
	// 연결별 클라이언트 (connID -> *Client)
	clients map[string]*Client
	// 룸 멤버 (room -> connID -> *Client)
	rooms map[string]map[string]*Client
	mu    sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan *Message

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	// 연결 해제 후 호출 (허브 루프 밖에서 실행)
	onDisconnect func(*Client)

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	ConnID  string      `json:"-"` // 단일 수신자
	Room    string      `json:"-"` // 룸 수신자
	Except  string      `json:"-"` // 룸 전송 시 제외할 연결
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// OnDisconnect 연결 해제 콜백 등록 (Run 이전에 호출)
func (h *Hub) OnDisconnect(fn func(*Client)) {
	h.onDisconnect = fn
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop Hub 종료, 남은 연결의 송신 채널을 닫는다
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register 클라이언트 등록 요청
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister 클라이언트 해제 요청
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.logger.Info("WebSocket client registered",
		zap.String("connId", client.id),
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, exists := h.clients[client.id]; !exists {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client.id)
	for room, members := range h.rooms {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client unregistered",
		zap.String("connId", client.id),
		zap.String("userId", client.userID),
		zap.Int("totalClients", total))

	if h.onDisconnect != nil {
		go h.onDisconnect(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}

// broadcastMessage 메시지 전달
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.ConnID != "" {
		if client, exists := h.clients[message.ConnID]; exists {
			h.deliver(client, message)
		}
		return
	}

	for id, client := range h.rooms[message.Room] {
		if id == message.Except {
			continue
		}
		h.deliver(client, message)
	}
}

func (h *Hub) deliver(client *Client, message *Message) {
	select {
	case client.send <- message:
	default:
		// 채널이 가득 찬 경우 연결 해제
		h.logger.Warn("Client send channel full, unregistering",
			zap.String("connId", client.id))
		go h.Unregister(client)
	}
}

// Send 단일 연결로 전송
func (h *Hub) Send(connID, msgType string, payload interface{}) {
	if connID == "" {
		return
	}
	h.enqueue(&Message{ConnID: connID, Type: msgType, Payload: payload})
}

// Publish 룸 전체로 전송 (exceptConnID 제외)
func (h *Hub) Publish(room, msgType string, payload interface{}, exceptConnID string) {
	if room == "" {
		return
	}
	h.enqueue(&Message{Room: room, Except: exceptConnID, Type: msgType, Payload: payload})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.stop:
	}
}

// JoinRoom 연결을 룸에 추가 (등록된 연결만)
func (h *Hub) JoinRoom(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[connID]
	if !exists {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = client
	return true
}

// LeaveRoom 룸에서 연결 제거
func (h *Hub) LeaveRoom(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// ClientCount 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomMembers 룸에 속한 연결 ID
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}
