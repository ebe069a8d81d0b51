package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type ProblemRepository struct {
	db *database.DB
}

func NewProblemRepository(db *database.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

const problemColumns = `id, title, description, difficulty, time_limit_seconds, test_cases`

// Create 문제 생성 (같은 제목이 있으면 갱신)
func (r *ProblemRepository) Create(ctx context.Context, problem *models.Problem) (*models.Problem, error) {
	cases, err := json.Marshal(problem.TestCases)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test cases: %w", err)
	}

	query := `
		INSERT INTO problems (title, description, difficulty, time_limit_seconds, test_cases)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (title)
		DO UPDATE SET
			description = EXCLUDED.description,
			difficulty = EXCLUDED.difficulty,
			time_limit_seconds = EXCLUDED.time_limit_seconds,
			test_cases = EXCLUDED.test_cases
		RETURNING ` + problemColumns

	return scanProblem(r.db.QueryRowContext(ctx, query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		int(problem.TimeLimit.Seconds()),
		cases,
	))
}

// FindRandom 무작위 문제
func (r *ProblemRepository) FindRandom(ctx context.Context) (*models.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems ORDER BY random() LIMIT 1`

	problem, err := scanProblem(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return problem, err
}

// FindByID ID로 문제 조회
func (r *ProblemRepository) FindByID(ctx context.Context, id string) (*models.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = $1`

	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return problem, err
}

func scanProblem(row *sql.Row) (*models.Problem, error) {
	problem := &models.Problem{}
	var (
		timeLimit int
		cases     []byte
	)
	err := row.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&timeLimit,
		&cases,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan problem: %w", err)
	}

	problem.TimeLimit = time.Duration(timeLimit) * time.Second
	if err := json.Unmarshal(cases, &problem.TestCases); err != nil {
		return nil, fmt.Errorf("failed to decode test cases: %w", err)
	}
	return problem, nil
}
