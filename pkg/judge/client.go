package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeclash/codeclash-backend/pkg/logger"
)

var (
	ErrJudgeUnavailable = errors.New("judge unavailable")
	ErrBadResponse      = errors.New("judge returned malformed response")
)

// 응답 본문 최대 크기
const maxResponseBytes = 4 << 20

// Client 코드 채점 서비스 HTTP 클라이언트
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// TestCase 채점 입력
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// EvaluateRequest 채점 요청
type EvaluateRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"testCases"`
}

// CaseResult 테스트 케이스별 결과
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration int64  `json:"durationMs,omitempty"`
}

// EvaluateResponse 채점 응답
type EvaluateResponse struct {
	Passed  bool         `json:"passed"`
	Results []CaseResult `json:"results"`
}

// NewClient 채점 서비스 클라이언트 생성
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Evaluate 코드를 테스트 케이스로 채점
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read judge response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrJudgeUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge rejected request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out EvaluateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	// 통과 여부는 케이스 결과와 일치해야 한다
	if out.Passed && len(out.Results) > 0 {
		for _, r := range out.Results {
			if !r.Passed {
				out.Passed = false
				break
			}
		}
	}

	logger.Debug("Evaluation completed",
		"language", req.Language,
		"cases", len(req.TestCases),
		"passed", out.Passed,
		"latency", time.Since(start))

	return &out, nil
}
