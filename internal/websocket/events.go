package websocket

import "encoding/json"

// 클라이언트 → 서버 이벤트
const (
	EventJoinMatchmaking   = "join_matchmaking"
	EventCancelMatchmaking = "cancel_matchmaking"
	EventJoinMatch         = "join_match"
	EventCodeUpdate        = "code_update"
	EventProgressUpdate    = "progress_update"
	EventSendMessage       = "send_message"
	EventSubmitCode        = "submit"
	EventRunCode           = "run"
	EventConcede           = "concede"
	EventLeaveMatch        = "leave_match"
)

const eventError = "error"

// 에러 코드
const (
	codeBadRequest       = "bad_request"
	codeUnknownEvent     = "unknown_event"
	codeAuthRequired     = "auth_required"
	codeUnauthorized     = "unauthorized"
	codeAlreadyQueued    = "already_queued"
	codeAlreadyInSession = "already_in_session"
	codeSessionNotFound  = "session_not_found"
	codeInvalidState     = "invalid_state"
	codeEvaluationFailed = "evaluation_failed"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal_error"
)

// 채팅 메시지 최대 길이
const maxChatLength = 1000

// Envelope 모든 이벤트의 공통 형식
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type codeRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

type progressRequest struct {
	SessionID string          `json:"sessionId"`
	Progress  json.RawMessage `json:"progress"`
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}
