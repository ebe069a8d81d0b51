package service

import (
	"context"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/judge"
)

// ProblemStore 문제 저장소 (없으면 nil, nil)
type ProblemStore interface {
	FindRandom(ctx context.Context) (*models.Problem, error)
	FindByID(ctx context.Context, id string) (*models.Problem, error)
}

// Evaluator 외부 채점 서비스
type Evaluator interface {
	Evaluate(ctx context.Context, req judge.EvaluateRequest) (*judge.EvaluateResponse, error)
}

// ProblemService 문제 저장소와 채점 서비스를 묶은 ProblemProvider
type ProblemService struct {
	problems ProblemStore
	judge    Evaluator
}

func NewProblemService(problems ProblemStore, judge Evaluator) *ProblemService {
	return &ProblemService{
		problems: problems,
		judge:    judge,
	}
}

// GetRandomProblem 무작위 문제 선택
func (s *ProblemService) GetRandomProblem(ctx context.Context) (*models.Problem, error) {
	problem, err := s.problems.FindRandom(ctx)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

// GetProblemByID 문제 조회
func (s *ProblemService) GetProblemByID(ctx context.Context, id string) (*models.Problem, error) {
	problem, err := s.problems.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

// Evaluate 코드 채점
func (s *ProblemService) Evaluate(ctx context.Context, code, language string, testCases []models.TestCase) (*models.EvaluationResult, error) {
	req := judge.EvaluateRequest{
		Code:      code,
		Language:  language,
		TestCases: make([]judge.TestCase, len(testCases)),
	}
	for i, tc := range testCases {
		req.TestCases[i] = judge.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput}
	}

	resp, err := s.judge.Evaluate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate: %w", err)
	}

	result := &models.EvaluationResult{
		Passed:  resp.Passed,
		Results: make([]models.TestCaseResult, len(resp.Results)),
	}
	for i, r := range resp.Results {
		result.Results[i] = models.TestCaseResult{
			Index:  r.Index,
			Passed: r.Passed,
			Output: r.Output,
			Error:  r.Error,
		}
	}
	return result, nil
}
