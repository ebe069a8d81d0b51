package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (비어 있으면 분산 락/결과 발행 비활성화)
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS / WebSocket origin
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval time.Duration

	// Judge (Problem Provider 채점 서비스)
	JudgeURL     string
	JudgeTimeout time.Duration

	// Duel
	DuelTimeLimit       time.Duration
	SweepInterval       time.Duration
	InactivityThreshold time.Duration
	FinalizeRetries     int

	// 연결별 인바운드 이벤트 제한
	EventRateCapacity int64
	EventRateRefill   int64
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:       parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		MatchmakingInterval: parseDuration(getEnv("MATCHMAKING_INTERVAL", "5s"), 5*time.Second),
		JudgeURL:            getEnv("JUDGE_URL", "http://localhost:8081"),
		JudgeTimeout:        parseDuration(getEnv("JUDGE_TIMEOUT", "30s"), 30*time.Second),
		DuelTimeLimit:       parseDuration(getEnv("DUEL_TIME_LIMIT", "1800s"), 1800*time.Second),
		SweepInterval:       parseDuration(getEnv("SWEEP_INTERVAL", "1m"), time.Minute),
		InactivityThreshold: parseDuration(getEnv("INACTIVITY_THRESHOLD", "1h"), time.Hour),
		FinalizeRetries:     parseInt(getEnv("FINALIZE_RETRIES", "3"), 3),
		EventRateCapacity:   int64(parseInt(getEnv("EVENT_RATE_CAPACITY", "30"), 30)),
		EventRateRefill:     int64(parseInt(getEnv("EVENT_RATE_REFILL", "15"), 15)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 설정 값 검증
func (c *Config) Validate() error {
	var errs []error

	if c.Env == "production" && c.JWTSecret == "your-secret-key" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.DuelTimeLimit <= 0 {
		errs = append(errs, errors.New("DUEL_TIME_LIMIT must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	// 스위퍼는 기본 타이머보다 한참 뒤에 개입해야 한다
	if c.InactivityThreshold <= c.DuelTimeLimit {
		errs = append(errs, fmt.Errorf("INACTIVITY_THRESHOLD (%s) must exceed DUEL_TIME_LIMIT (%s)", c.InactivityThreshold, c.DuelTimeLimit))
	}
	if c.FinalizeRetries < 1 {
		errs = append(errs, errors.New("FINALIZE_RETRIES must be at least 1"))
	}
	if c.EventRateCapacity <= 0 || c.EventRateRefill <= 0 {
		errs = append(errs, errors.New("EVENT_RATE_CAPACITY and EVENT_RATE_REFILL must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction 프로덕션 환경 여부
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
