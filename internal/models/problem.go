package models

import "time"

type Problem struct {
	ID          string        `json:"id" db:"id"`
	Title       string        `json:"title" db:"title"`
	Description string        `json:"description" db:"description"`
	Difficulty  string        `json:"difficulty" db:"difficulty"`
	TimeLimit   time.Duration `json:"-" db:"time_limit_seconds"`
	TestCases   []TestCase    `json:"testCases" db:"test_cases"`
}

type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"hidden"`
}

// ProblemView 클라이언트에 전달되는 문제 (숨김 케이스 제외)
type ProblemView struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Difficulty       string     `json:"difficulty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	Examples         []TestCase `json:"examples"`
}

// SampleCases 공개 테스트 케이스
func (p *Problem) SampleCases() []TestCase {
	var out []TestCase
	for _, tc := range p.TestCases {
		if !tc.Hidden {
			out = append(out, tc)
		}
	}
	return out
}

// View 공개용 문제 정보
func (p *Problem) View(timeLimit time.Duration) ProblemView {
	return ProblemView{
		ID:               p.ID,
		Title:            p.Title,
		Description:      p.Description,
		Difficulty:       p.Difficulty,
		TimeLimitSeconds: int(timeLimit.Seconds()),
		Examples:         p.SampleCases(),
	}
}

// EvaluationResult 채점 결과
type EvaluationResult struct {
	Passed  bool             `json:"passed"`
	Results []TestCaseResult `json:"results"`
}

type TestCaseResult struct {
	Index  int    `json:"index"`
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PassedCount 통과한 케이스 수
func (r *EvaluationResult) PassedCount() int {
	n := 0
	for _, c := range r.Results {
		if c.Passed {
			n++
		}
	}
	return n
}
