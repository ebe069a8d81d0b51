package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/pkg/database"
	"github.com/joho/godotenv"
)

// 샘플 문제 (숨김 케이스는 채점에만 사용)
var sampleProblems = []models.Problem{
	{
		Title:       "Two Sum",
		Description: "Read n, then n integers, then a target. Print the 0-based indices i < j whose values add up to the target.",
		Difficulty:  "easy",
		TimeLimit:   15 * time.Minute,
		TestCases: []models.TestCase{
			{Input: "4\n2 7 11 15\n9\n", ExpectedOutput: "0 1"},
			{Input: "3\n3 2 4\n6\n", ExpectedOutput: "1 2", Hidden: true},
			{Input: "2\n3 3\n6\n", ExpectedOutput: "0 1", Hidden: true},
		},
	},
	{
		Title:       "Reverse Words",
		Description: "Read a line of words separated by single spaces and print the words in reverse order.",
		Difficulty:  "easy",
		TimeLimit:   10 * time.Minute,
		TestCases: []models.TestCase{
			{Input: "the sky is blue\n", ExpectedOutput: "blue is sky the"},
			{Input: "hello\n", ExpectedOutput: "hello", Hidden: true},
			{Input: "a b c d\n", ExpectedOutput: "d c b a", Hidden: true},
		},
	},
	{
		Title:       "Longest Increasing Subsequence",
		Description: "Read n, then n integers. Print the length of the longest strictly increasing subsequence.",
		Difficulty:  "medium",
		TimeLimit:   30 * time.Minute,
		TestCases: []models.TestCase{
			{Input: "8\n10 9 2 5 3 7 101 18\n", ExpectedOutput: "4"},
			{Input: "6\n0 1 0 3 2 3\n", ExpectedOutput: "4", Hidden: true},
			{Input: "7\n7 7 7 7 7 7 7\n", ExpectedOutput: "1", Hidden: true},
		},
	},
}

func main() {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	fmt.Println("Connected to database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	problems := repository.NewProblemRepository(db)
	for i := range sampleProblems {
		p, err := problems.Create(ctx, &sampleProblems[i])
		if err != nil {
			log.Fatalf("Failed to seed problem %q: %v", sampleProblems[i].Title, err)
		}
		fmt.Printf("  - %s: %s (%s, %d cases)\n", p.ID, p.Title, p.Difficulty, len(p.TestCases))
	}

	fmt.Printf("Seeded %d problems\n", len(sampleProblems))
}
