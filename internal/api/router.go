package api

import (
	"context"

	"github.com/codeclash/codeclash-backend/internal/api/handlers"
	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/config"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/internal/websocket"
	"github.com/codeclash/codeclash-backend/pkg/database"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
	"github.com/codeclash/codeclash-backend/pkg/judge"
	jwtutil "github.com/codeclash/codeclash-backend/pkg/jwt"
	"github.com/codeclash/codeclash-backend/pkg/logger"
	"github.com/codeclash/codeclash-backend/pkg/metrics"
	"github.com/codeclash/codeclash-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// REST API 요청 제한 (사용자/IP별)
const (
	apiRateCapacity = 100
	apiRateRefill   = 10
)

// App 라우터와 백그라운드 서비스 묶음
type App struct {
	Router      *gin.Engine
	Hub         *websocket.Hub
	Gateway     *websocket.Gateway
	Duels       *service.DuelService
	Matchmaking *service.MatchmakingService
	Cleanup     *service.CleanupService

	outcomes     *distributed.OutcomePublisher
	eventLimiter *ratelimit.RateLimiter
	apiLimiter   *ratelimit.RateLimiter
	cancel       context.CancelFunc
}

// SetupRouter API 라우터 설정
// rdb가 nil이면 단일 인스턴스 모드로 동작한다 (분산 락, 결과 발행 없음).
func SetupRouter(cfg *config.Config, db *database.DB, rdb *redis.Client) *App {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// 메트릭
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Repository 초기화
	userRepo := repository.NewUserRepository(db)
	problemRepo := repository.NewProblemRepository(db)
	duelRepo := repository.NewDuelRepository(db)
	matchmakingRepo := repository.NewMatchmakingRepository(db)

	// 채점 서비스 클라이언트
	judgeClient := judge.NewClient(cfg.JudgeURL, cfg.JudgeTimeout)
	problemService := service.NewProblemService(problemRepo, judgeClient)

	// WebSocket Hub 초기화
	wsHub := websocket.NewHub(logger.Named("hub"))

	// Duel Service 초기화
	duelService := service.NewDuelService(
		duelRepo,
		problemService,
		wsHub,
		service.DuelConfig{
			TimeLimit:       cfg.DuelTimeLimit,
			FinalizeRetries: cfg.FinalizeRetries,
		},
		logger.Named("duel"),
	)
	duelService.SetMetrics(m)

	// Matchmaking Service 초기화
	matchmakingService := service.NewMatchmakingService(
		userRepo,
		duelService,
		matchmakingRepo,
		wsHub,
		cfg.MatchmakingInterval,
		logger.Named("matchmaking"),
	)
	matchmakingService.SetMetrics(m)

	// Cleanup Service 초기화
	cleanupService := service.NewCleanupService(
		duelService,
		duelRepo,
		cfg.SweepInterval,
		cfg.InactivityThreshold,
		cfg.DuelTimeLimit+cfg.InactivityThreshold,
		logger.Named("cleanup"),
	)
	cleanupService.SetMetrics(m)

	app := &App{
		Router:       router,
		Hub:          wsHub,
		Duels:        duelService,
		Matchmaking:  matchmakingService,
		Cleanup:      cleanupService,
		eventLimiter: ratelimit.NewRateLimiter(cfg.EventRateCapacity, cfg.EventRateRefill),
		apiLimiter:   ratelimit.NewRateLimiter(apiRateCapacity, apiRateRefill),
	}

	// Redis가 있으면 분산 락과 결과 발행 활성화
	if rdb != nil {
		lockManager := distributed.NewRedisLockManager(rdb)
		cleanupService.SetLocker(lockManager)

		app.outcomes = distributed.NewOutcomePublisher(rdb, lockManager.Owner(), logger.Named("outcomes"))
		duelService.SetPublisher(app.outcomes)
	} else {
		logger.Warn("Redis not configured; sweeper lock and outcome publishing disabled")
	}

	// 개발 환경에서는 모든 origin 허용
	origins := cfg.CORSAllowedOrigins
	if !cfg.IsProduction() {
		origins = []string{"*"}
	}
	app.Gateway = websocket.NewGateway(
		wsHub,
		matchmakingService,
		duelService,
		app.eventLimiter,
		origins,
		logger.Named("gateway"),
	)
	app.Gateway.SetMetrics(m)

	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(db)
	wsHandler := handlers.NewWebSocketHandler(app.Gateway)
	duelHandler := handlers.NewDuelHandler(duelService, duelRepo)
	matchmakingHandler := handlers.NewMatchmakingHandler(matchmakingRepo, matchmakingService.Queue())
	userHandler := handlers.NewUserHandler(userRepo)

	// Health check / metrics
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint (익명 연결 허용)
		v1.GET("/ws", middleware.OptionalAuth(jwtManager), wsHandler.HandleWebSocket)

		authed := v1.Group("")
		authed.Use(middleware.Auth(jwtManager))
		authed.Use(middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Limiter:    app.apiLimiter,
			Capacity:   apiRateCapacity,
			RefillRate: apiRateRefill,
		}))
		{
			authed.GET("/duels/:id", duelHandler.GetDuel)
			authed.GET("/matchmaking/status", matchmakingHandler.GetStatus)
			authed.GET("/matchmaking/history", matchmakingHandler.GetHistory)
			authed.GET("/users/me", userHandler.GetCurrentUser)
		}
	}

	return app
}

// Start 허브와 백그라운드 루프 시작
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run()
	logger.Info("WebSocket Hub started")

	a.Matchmaking.Start()
	a.Cleanup.Start()

	// 다른 인스턴스의 결과 이벤트 관찰
	if a.outcomes != nil {
		go func() {
			err := a.outcomes.Subscribe(ctx, func(event distributed.OutcomeEvent) {
				logger.Debug("Duel outcome observed",
					"type", event.Type,
					"sessionId", event.SessionID,
					"instance", event.Instance)
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("Outcome subscription stopped", "error", err)
			}
		}()
	}
}

// Shutdown 백그라운드 루프 정지
// 매칭 루프를 먼저 멈춰 새 세션이 생기지 않게 한다.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.Matchmaking.Stop()
	a.Cleanup.Stop()
	a.Duels.Shutdown()
	a.Hub.Stop()
	a.eventLimiter.Stop()
	a.apiLimiter.Stop()
	logger.Info("Background services stopped")
}
